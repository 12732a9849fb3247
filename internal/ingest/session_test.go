package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tracker/internal/feed"
	"tracker/internal/obs"
	"tracker/internal/sink"
	"tracker/internal/storage"
	"tracker/pkg/exception"
	"tracker/pkg/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	registry *Registry
	store    *storage.Memory
	metrics  *obs.Metrics
	session  *Session
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		registry: NewRegistry(),
		store:    storage.NewMemory(),
		metrics:  obs.NewMetrics(),
	}
	s, err := sink.New(sink.Config{Store: f.store, Metrics: f.metrics, Timeout: time.Second})
	require.NoError(t, err)
	f.session, err = NewSession(SessionConfig{
		Registry: f.registry,
		Batcher:  feed.NewBatcher(feed.DefaultBatchSize),
		Sink:     s,
		Metrics:  f.metrics,
	})
	require.NoError(t, err)
	return f
}

func TestSessionListingSubscribesImmediately(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn(`{"type":"TOKEN_NEW_LISTING_DATA","data":{"address":"TOK1"}}`)

	out := f.session.Run(context.Background(), conn)
	assert.Equal(t, ReasonClosed, out.Reason)
	assert.True(t, errors.Is(out.Err, exception.ErrFeedConnectionClosed))
	assert.Equal(t, 1, out.Received)

	writes := conn.Writes()
	require.Len(t, writes, 2)
	assert.JSONEq(t, `{"type":"SUBSCRIBE_TOKEN_NEW_LISTING"}`, writes[0])
	assert.JSONEq(t, `{"type":"SUBSCRIBE_TXS","data":{"queryType":"complex","query":"address = TOK1"}}`, writes[1])
	assert.True(t, f.registry.Contains("TOK1"))
}

func TestSessionDuplicateListingsSubscribeOnce(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn(
		`{"type":"TOKEN_NEW_LISTING_DATA","data":{"address":"TOK1"}}`,
		`{"type":"TOKEN_NEW_LISTING_DATA","data":{"address":"TOK2"}}`,
		`{"type":"TOKEN_NEW_LISTING_DATA","data":{"address":"TOK1"}}`,
		`{"type":"TOKEN_NEW_LISTING_DATA","data":{"address":"TOK1"}}`,
	)

	f.session.Run(context.Background(), conn)

	assert.Equal(t, []string{"address = TOK1", "address = TOK2"}, queries(decodeWrites(t, conn.Writes())))
	assert.Equal(t, []string{"TOK1", "TOK2"}, f.registry.Snapshot())

	snap := f.metrics.Snapshot()
	assert.Equal(t, uint64(4), snap.Listings)
	assert.Equal(t, uint64(2), snap.DuplicateListings)
	assert.Equal(t, uint64(2), snap.SubscribeRequests)
}

func TestSessionResubscribesKnownEntities(t *testing.T) {
	f := newSessionFixture(t)
	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprintf("TOK%d", i)
		f.registry.InsertIfAbsent(ids[i])
	}
	conn := newScriptedConn()

	f.session.Run(context.Background(), conn)

	reqs := decodeWrites(t, conn.Writes())
	require.Len(t, reqs, 3)
	assert.Equal(t, feed.TypeSubscribeTokenNewListing, reqs[0].Type)
	assert.Equal(t, feed.Query(ids[:100]), reqs[1].Data.Query)
	assert.Equal(t, feed.Query(ids[100:]), reqs[2].Data.Query)
}

func TestSessionStoresTransaction(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn(
		`{"type":"TXS_DATA","data":{"tokenAddress":"TOK1","blockUnixTime":1700000000}}`,
		`{"type":"TXS_DATA","data":"{\"to\":{\"address\":\"TOK2\"},\"blockUnixTime\":1700000001}"}`,
	)

	out := f.session.Run(context.Background(), conn)
	assert.Equal(t, 2, out.Received)

	got, ok := f.store.Get("transactions/TOK1/2023-11-14_22-13-20.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"tokenAddress":"TOK1","blockUnixTime":1700000000}`, string(got))

	_, ok = f.store.Get("transactions/TOK2/2023-11-14_22-13-21.json")
	assert.True(t, ok)
}

func TestSessionDropsBadTransactions(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn(
		`{"type":"TXS_DATA","data":{"blockUnixTime":"not-a-number"}}`,
		`{"type":"TXS_DATA","data":{"tokenAddress":"TOK1","blockUnixTime":"not-a-number"}}`,
		`{"type":"TXS_DATA","data":[1,2,3]}`,
		`{"type":"TXS_DATA","data":"{broken"}`,
		`{"type":"TXS_DATA"}`,
		`{"type":"TOKEN_NEW_LISTING_DATA","data":{}}`,
		`{"type":"PRICE_DATA","data":{"tokenAddress":"TOK1"}}`,
		`{"data":{"tokenAddress":"TOK1"}}`,
	)

	out := f.session.Run(context.Background(), conn)
	assert.Equal(t, ReasonClosed, out.Reason)
	assert.Equal(t, 8, out.Received)
	assert.Empty(t, f.store.Puts())

	drops := f.metrics.Snapshot().Drops
	assert.Equal(t, uint64(1), drops["unresolved_entity"])
	assert.Equal(t, uint64(1), drops["invalid_timestamp"])
	assert.Equal(t, uint64(3), drops["normalize"])
	assert.Equal(t, uint64(1), drops["listing"])
}

func TestSessionEnvelopeFaultEndsSession(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn(
		`not json`,
		`{"type":"TOKEN_NEW_LISTING_DATA","data":{"address":"TOK1"}}`,
	)

	out := f.session.Run(context.Background(), conn)
	assert.Equal(t, ReasonEnvelopeFault, out.Reason)
	assert.True(t, errors.Is(out.Err, exception.ErrFeedMalformedEnvelope))
	assert.Equal(t, 1, out.Received)
	assert.False(t, f.registry.Contains("TOK1"))
}

func TestSessionDecodesBinaryFrames(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn()
	conn.frames = append(conn.frames,
		frame{msgType: websocket.MessageBinary, payload: []byte(`{"type":"TOKEN_NEW_LISTING_DATA","data":{"address":"TOK1"}}`)},
		frame{msgType: websocket.MessageType(9), payload: []byte("ping")},
	)

	out := f.session.Run(context.Background(), conn)
	assert.Equal(t, ReasonClosed, out.Reason)
	assert.Equal(t, 1, out.Received)
	assert.True(t, f.registry.Contains("TOK1"))
}

func TestSessionLogsDroppedPayloads(t *testing.T) {
	buf := captureLogs(t)
	f := newSessionFixture(t)
	conn := newScriptedConn(
		`{"type":"TXS_DATA","data":{"txHash":"MISSING_ENTITY","blockUnixTime":1700000000}}`,
		`{"type":"TXS_DATA","data":{"txHash":"BAD_TIME","tokenAddress":"TOK1","blockUnixTime":"soon"}}`,
		`{"type":"TXS_DATA","data":"{\"txHash\":\"TRUNCATED"}`,
		`{"type":"TXS_DATA","data":["NOT_AN_OBJECT"]}`,
		`{"type":"TOKEN_NEW_LISTING_DATA","data":{"name":"NO_ADDRESS"}}`,
		`{"broken":"ENVELOPE"`,
	)

	out := f.session.Run(context.Background(), conn)
	assert.Equal(t, ReasonEnvelopeFault, out.Reason)
	assert.Empty(t, f.store.Puts())

	text := buf.String()
	for _, marker := range []string{"MISSING_ENTITY", "BAD_TIME", "TRUNCATED", "NOT_AN_OBJECT", "NO_ADDRESS", "ENVELOPE"} {
		assert.Contains(t, text, marker)
	}
}

func TestSessionLogsRecordOnStoreFailure(t *testing.T) {
	buf := captureLogs(t)
	f := newSessionFixture(t)
	f.store.Err = errors.New("bucket unavailable")
	conn := newScriptedConn(`{"type":"TXS_DATA","data":{"txHash":"LOST_WRITE","tokenAddress":"TOK1","blockUnixTime":1700000000}}`)

	f.session.Run(context.Background(), conn)
	assert.Contains(t, buf.String(), "LOST_WRITE")
	assert.Contains(t, buf.String(), "bucket unavailable")
}

func TestSessionSendFailure(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn(`{"type":"TOKEN_NEW_LISTING_DATA","data":{"address":"TOK1"}}`)
	conn.failAt = 1
	conn.writeErr = errors.New("broken pipe")

	out := f.session.Run(context.Background(), conn)
	assert.Equal(t, ReasonSendFailed, out.Reason)
	assert.True(t, strings.Contains(out.Err.Error(), "broken pipe"))
	// registered even though the subscribe failed; the next session resubscribes it
	assert.True(t, f.registry.Contains("TOK1"))
}

func TestSessionInitialSendFailure(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn()
	conn.failAt = 0
	conn.writeErr = errors.New("reset")

	out := f.session.Run(context.Background(), conn)
	assert.Equal(t, ReasonSendFailed, out.Reason)
	assert.Zero(t, out.Received)
}

func TestSessionCancelClosesConn(t *testing.T) {
	f := newSessionFixture(t)
	conn := newScriptedConn()
	conn.block = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome, 1)
	go func() { done <- f.session.Run(ctx, conn) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		assert.Equal(t, ReasonCanceled, out.Reason)
		assert.Equal(t, websocket.CloseGoingAway, conn.closeArg)
	case <-time.After(time.Second):
		t.Fatal("session did not stop after cancel")
	}
}

func TestNewSessionValidates(t *testing.T) {
	_, err := NewSession(SessionConfig{})
	assert.True(t, errors.Is(err, exception.ErrNilInstance))

	_, err = NewSession(SessionConfig{Registry: NewRegistry()})
	assert.True(t, errors.Is(err, exception.ErrNilInstance))
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "closed", ReasonClosed.String())
	assert.Equal(t, "envelope_fault", ReasonEnvelopeFault.String())
	assert.Equal(t, "send_failed", ReasonSendFailed.String())
	assert.Equal(t, "canceled", ReasonCanceled.String())
}
