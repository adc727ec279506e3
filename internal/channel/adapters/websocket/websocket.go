// Package websocket implements the event-channel transport over gorilla/websocket.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/memohai/shopchat/internal/channel"
)

const (
	// DefaultWriteTimeout applies to writes whose context has no deadline.
	DefaultWriteTimeout = 10 * time.Second
	// MaxFrameBytes caps a single inbound envelope.
	MaxFrameBytes int64 = 1 << 20
	closeGracePeriod    = time.Second
	tokenQueryParam     = "token"
)

// Dialer opens authenticated sockets to a fixed websocket URL. The bearer
// token is sent both as an Authorization header and as the token query parameter.
type Dialer struct {
	endpoint *url.URL
	dialer   *gws.Dialer
	logger   *slog.Logger
}

// NewDialer validates rawURL (ws or wss) and returns a Dialer for it.
func NewDialer(log *slog.Logger, rawURL string) (*Dialer, error) {
	if log == nil {
		log = slog.Default()
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}
	return &Dialer{
		endpoint: u,
		dialer: &gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: channel.DefaultConnectTimeout,
		},
		logger: log.With(slog.String("component", "websocket"), slog.String("endpoint", u.Host)),
	}, nil
}

// Dial implements channel.Dialer.
func (d *Dialer) Dial(ctx context.Context, token string) (channel.Socket, error) {
	token = strings.TrimSpace(token)
	u := *d.endpoint
	q := u.Query()
	if token != "" {
		q.Set(tokenQueryParam, token)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := d.dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", channel.ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.endpoint.Redacted(), err)
	}
	d.logger.Debug("socket dialed")
	return NewSocket(conn), nil
}

// Socket frames channel events as JSON text messages on a gorilla connection.
// Writes are serialized; a single reader is expected.
type Socket struct {
	conn *gws.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewSocket wraps an established connection and caps inbound frames at
// MaxFrameBytes. It is used by both the client dialer and the server-side hub.
func NewSocket(conn *gws.Conn) *Socket {
	conn.SetReadLimit(MaxFrameBytes)
	return &Socket{conn: conn}
}

// ReadEvent blocks for the next envelope.
func (s *Socket) ReadEvent() (channel.Event, error) {
	var ev channel.Event
	if err := s.conn.ReadJSON(&ev); err != nil {
		return channel.Event{}, err
	}
	return ev, nil
}

// WriteEvent writes one envelope, bounded by the ctx deadline or DefaultWriteTimeout.
func (s *Socket) WriteEvent(ctx context.Context, ev channel.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

// Close sends a normal close frame and closes the connection. It is idempotent.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(
			gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// RemoteAddr returns the peer address.
func (s *Socket) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}
