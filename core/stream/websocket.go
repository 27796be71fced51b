package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 512
)

// WithUpgrader sets the websocket upgrader used by Open.
func WithUpgrader(u *websocket.Upgrader) Option {
	return func(c *config) {
		if u != nil {
			c.upgrader = u
		}
	}
}

// WithAllowAnyOrigin disables the websocket origin check.
func WithAllowAnyOrigin() Option {
	return func(c *config) {
		if c.upgrader == nil {
			c.upgrader = defaultUpgrader()
		}
		c.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
}

func defaultUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// WebSocket is a stream delivered over a websocket connection. Messages are
// written as JSON text frames; inbound client frames are read and discarded
// so that control frames and disconnects are observed.
type WebSocket struct {
	*base

	w        http.ResponseWriter
	r        *http.Request
	upgrader *websocket.Upgrader
	conn     *websocket.Conn
}

// NewWebSocket creates a websocket stream. The connection is upgraded by Open.
func NewWebSocket(uid string, w http.ResponseWriter, r *http.Request, opts ...Option) (*WebSocket, error) {
	cfg := newConfig(opts)

	b, err := newBase(uid, cfg)
	if err != nil {
		return nil, err
	}

	upgrader := cfg.upgrader
	if upgrader == nil {
		upgrader = defaultUpgrader()
	}

	return &WebSocket{
		base:     b,
		w:        w,
		r:        r,
		upgrader: upgrader,
	}, nil
}

// Open upgrades the HTTP connection. The header is sent with the upgrade response.
func (s *WebSocket) Open(header http.Header) error {
	if !s.opened.CompareAndSwap(false, true) {
		return ErrAlreadyOpen
	}

	conn, err := s.upgrader.Upgrade(s.w, s.r, header)
	if err != nil {
		s.opened.Store(false)
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}
	s.conn = conn

	return nil
}

// Serve pumps queued messages to the client until ctx is cancelled, the
// stream is closed, the client disconnects, or a write fails.
func (s *WebSocket) Serve(ctx context.Context) error {
	if !s.opened.Load() || s.conn == nil {
		return ErrNotOpen
	}
	defer func() { _ = s.conn.Close() }()

	readErr := make(chan error, 1)
	go s.readLoop(readErr)

	var keepAliveChan <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		keepAliveChan = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			s.closeFrame()
			s.shutdown(nil)
			return nil

		case <-s.done:
			s.closeFrame()
			return nil

		case err := <-readErr:
			s.shutdown(nil)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil

		case <-keepAliveChan:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				err = fmt.Errorf("failed to send ping: %w", err)
				s.shutdown(err)
				return err
			}

		case msg := <-s.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("dropped unencodable message",
					"uid", s.uid, "channel", msg.Channel, "error", err)
				continue
			}

			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				err = fmt.Errorf("failed to write event: %w", err)
				s.shutdown(err)
				return err
			}
		}
	}
}

// Close closes the stream. Safe to call multiple times.
func (s *WebSocket) Close() error {
	s.shutdown(nil)
	return nil
}

func (s *WebSocket) readLoop(errCh chan<- error) {
	s.conn.SetReadLimit(wsMaxMessageSize)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			errCh <- err
			return
		}
	}
}

func (s *WebSocket) closeFrame() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("failed to send close frame", "uid", s.uid, "error", err)
	}
}
