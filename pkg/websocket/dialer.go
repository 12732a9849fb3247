package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tracker/pkg/exception"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultCloseTimeout     = time.Second
	DefaultReadLimit        = 8 << 20
)

// GorillaDialer dials the feed with gorilla/websocket.
type GorillaDialer struct {
	URL              string
	Subprotocols     []string
	Header           http.Header
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

// NewDialer builds a dialer for rawURL negotiating the given subprotocols.
func NewDialer(rawURL string, subprotocols ...string) *GorillaDialer {
	return &GorillaDialer{
		URL:              rawURL,
		Subprotocols:     subprotocols,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadLimit:        DefaultReadLimit,
	}
}

func (d *GorillaDialer) Dial(ctx context.Context) (Conn, error) {
	if d == nil || d.URL == "" {
		return nil, exception.ErrFeedEmptyURL
	}
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Subprotocols:     d.Subprotocols,
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s, status: %d", RedactURL(d.URL), resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "dial %s", RedactURL(d.URL))
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &gorillaConn{conn: conn}, nil
}

type gorillaConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *gorillaConn) Read(ctx context.Context) (MessageType, []byte, error) {
	if err := setDeadline(ctx, c.conn.SetReadDeadline); err != nil {
		return 0, nil, err
	}
	msgType, payload, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return 0, nil, errors.Wrap(exception.ErrFeedConnectionClosed, err.Error())
		}
		return 0, nil, err
	}
	return MessageType(msgType), payload, nil
}

func (c *gorillaConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := setDeadline(ctx, c.conn.SetWriteDeadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(msgType), payload)
}

func (c *gorillaConn) Close(code CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(DefaultCloseTimeout))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func setDeadline(ctx context.Context, set func(time.Time) error) error {
	if ctx == nil {
		return set(time.Time{})
	}
	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}
	if ctx.Err() != nil {
		return set(time.Now())
	}
	return set(time.Time{})
}

// FeedURL builds {base}/{chain}?x-api-key={apiKey}.
func FeedURL(base, chain, apiKey string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", exception.ErrFeedEmptyURL
	}
	u, err := url.Parse(base + "/" + url.PathEscape(strings.TrimSpace(chain)))
	if err != nil {
		return "", errors.Wrap(err, "parse feed url")
	}
	q := u.Query()
	q.Set("x-api-key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedactURL hides the api key so the URL can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("x-api-key") {
		q.Set("x-api-key", "redacted")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
