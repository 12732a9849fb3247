package ingest

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"tracker/internal/feed"
	"tracker/pkg/exception"
	"tracker/pkg/websocket"

	"github.com/stretchr/testify/require"
	"github.com/yanun0323/logs"
)

type frame struct {
	msgType websocket.MessageType
	payload []byte
}

// scriptedConn replays queued frames, then reports the connection closed.
type scriptedConn struct {
	mu       sync.Mutex
	frames   []frame
	writes   []string
	writeErr error
	failAt   int
	closed   bool
	closeCh  chan struct{}
	block    bool
	closeArg websocket.CloseCode
}

func newScriptedConn(texts ...string) *scriptedConn {
	c := &scriptedConn{closeCh: make(chan struct{}), failAt: -1}
	for _, text := range texts {
		c.frames = append(c.frames, frame{msgType: websocket.MessageText, payload: []byte(text)})
	}
	return c
}

func (c *scriptedConn) Read(_ context.Context) (websocket.MessageType, []byte, error) {
	c.mu.Lock()
	if len(c.frames) > 0 {
		f := c.frames[0]
		c.frames = c.frames[1:]
		c.mu.Unlock()
		return f.msgType, f.payload, nil
	}
	block := c.block
	c.mu.Unlock()

	if block {
		<-c.closeCh
	}
	return 0, nil, exception.ErrFeedConnectionClosed
}

func (c *scriptedConn) Write(_ context.Context, _ websocket.MessageType, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt >= 0 && len(c.writes) == c.failAt {
		return c.writeErr
	}
	c.writes = append(c.writes, string(payload))
	return nil
}

func (c *scriptedConn) Close(code websocket.CloseCode, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeArg = code
		close(c.closeCh)
	}
	return nil
}

func (c *scriptedConn) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

// decodeWrites turns outbound frames back into requests for assertions.
func decodeWrites(t *testing.T, writes []string) []feed.Request {
	t.Helper()
	out := make([]feed.Request, 0, len(writes))
	for _, w := range writes {
		var req feed.Request
		require.NoError(t, feed.Codec.UnmarshalFromString(w, &req))
		out = append(out, req)
	}
	return out
}

func queries(reqs []feed.Request) []string {
	var out []string
	for _, r := range reqs {
		if r.Type == feed.TypeSubscribeTxs && r.Data != nil {
			out = append(out, r.Data.Query)
		}
	}
	return out
}

// captureLogs routes the default logger into a buffer for the rest of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := logs.Default()
	buf := &bytes.Buffer{}
	logs.SetDefault(logs.New(logs.LevelDebug, &logs.Option{Format: logs.FormatConsole, Output: buf}))
	t.Cleanup(func() { logs.SetDefault(prev) })
	return buf
}
