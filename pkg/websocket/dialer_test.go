package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tracker/pkg/exception"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer negotiates echo-protocol, echoes one text frame, then closes normally.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{"echo-protocol"}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("x-api-key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if conn.Subprotocol() != "echo-protocol" {
			return
		}
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(msgType, payload)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	}))
}

func wsURL(t *testing.T, srv *httptest.Server, key string) string {
	t.Helper()
	url, err := FeedURL("ws"+strings.TrimPrefix(srv.URL, "http"), "solana", key)
	require.NoError(t, err)
	return url
}

func TestGorillaDialerRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewDialer(wsURL(t, srv, "secret"), "echo-protocol").Dial(ctx)
	require.NoError(t, err)
	defer conn.Close(CloseNormal, "done")

	require.NoError(t, conn.Write(ctx, MessageText, []byte(`{"type":"SUBSCRIBE_TOKEN_NEW_LISTING"}`)))
	msgType, payload, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, MessageText, msgType)
	assert.Equal(t, `{"type":"SUBSCRIBE_TOKEN_NEW_LISTING"}`, string(payload))

	_, _, err = conn.Read(ctx)
	assert.True(t, errors.Is(err, exception.ErrFeedConnectionClosed))

	assert.NoError(t, conn.Close(CloseNormal, "done"))
}

func TestGorillaDialerRejected(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	_, err := NewDialer(wsURL(t, srv, "wrong"), "echo-protocol").Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.NotContains(t, err.Error(), "wrong")
}

func TestGorillaDialerEmptyURL(t *testing.T) {
	_, err := NewDialer("").Dial(context.Background())
	assert.True(t, errors.Is(err, exception.ErrFeedEmptyURL))

	var d *GorillaDialer
	_, err = d.Dial(context.Background())
	assert.True(t, errors.Is(err, exception.ErrFeedEmptyURL))
}

func TestFeedURL(t *testing.T) {
	url, err := FeedURL("wss://public-api.birdeye.so/socket/", "solana", "a+b&c")
	require.NoError(t, err)
	assert.Equal(t, "wss://public-api.birdeye.so/socket/solana?x-api-key=a%2Bb%26c", url)

	_, err = FeedURL("  ", "solana", "k")
	assert.True(t, errors.Is(err, exception.ErrFeedEmptyURL))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t,
		"wss://public-api.birdeye.so/socket/solana?x-api-key=redacted",
		RedactURL("wss://public-api.birdeye.so/socket/solana?x-api-key=secret"))
	assert.Equal(t, "wss://host/path", RedactURL("wss://host/path"))
}
