package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport carries envelopes as JSON text frames. Writes are serialized
// with a per-connection mutex; reads happen only from Channel.Run.
type WSTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

const wsWriteWait = 5 * time.Second

// DialWebSocket connects to socketURL, forwarding the session cookies the
// jar holds for the equivalent http(s) URL.
func DialWebSocket(ctx context.Context, socketURL string, jar http.CookieJar) (*WSTransport, error) {
	header := http.Header{}
	if jar != nil {
		if u, err := url.Parse(httpURL(socketURL)); err == nil {
			var cookies []string
			for _, c := range jar.Cookies(u) {
				cookies = append(cookies, c.Name+"="+c.Value)
			}
			if len(cookies) > 0 {
				header.Set("Cookie", strings.Join(cookies, "; "))
			}
		}
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second, Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, socketURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", socketURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", socketURL, err)
	}
	return &WSTransport{conn: conn}, nil
}

func (t *WSTransport) Send(ctx context.Context, env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline := time.Now().Add(wsWriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteJSON(env)
}

func (t *WSTransport) Receive(ctx context.Context) (Envelope, error) {
	var env Envelope
	if err := t.conn.ReadJSON(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.mu.Unlock()
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func httpURL(socketURL string) string {
	switch {
	case strings.HasPrefix(socketURL, "wss://"):
		return "https://" + strings.TrimPrefix(socketURL, "wss://")
	case strings.HasPrefix(socketURL, "ws://"):
		return "http://" + strings.TrimPrefix(socketURL, "ws://")
	}
	return socketURL
}
