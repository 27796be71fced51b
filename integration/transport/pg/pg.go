// Package pg relays transmit broadcasts between instances with PostgreSQL
// LISTEN/NOTIFY.
//
// Each Subscribe holds one pooled connection for LISTEN; Send runs
// pg_notify on any pooled connection. NOTIFY payloads are limited to
// MaxPayloadSize bytes by the server.
package pg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/transmit/core/logger"
	"github.com/dmitrymomot/transmit/core/transmit"
)

const (
	// MaxPayloadSize is the largest NOTIFY payload PostgreSQL accepts by default.
	MaxPayloadSize = 7999

	// maxIdentifierLength is PostgreSQL's NAMEDATALEN-1.
	maxIdentifierLength = 63
)

var (
	ErrClosed          = errors.New("pg transport is closed")
	ErrInvalidChannel  = errors.New("relay channel is not a valid postgres identifier")
	ErrPayloadTooLarge = errors.New("relay message exceeds NOTIFY payload limit")
	ErrListenFailed    = errors.New("failed to listen on postgres channel")
	ErrNotifyFailed    = errors.New("failed to notify postgres channel")
)

// Config holds transport settings.
type Config struct {
	// ReconnectInterval is the pause before re-acquiring a lost LISTEN connection.
	ReconnectInterval time.Duration `env:"TRANSMIT_PG_RECONNECT_INTERVAL" envDefault:"1s"`
}

// Transport implements transmit.Transport on a pgx pool.
type Transport struct {
	pool              *pgxpool.Pool
	reconnectInterval time.Duration
	logger            *slog.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithReconnectInterval sets the pause before re-listening after a connection loss.
func WithReconnectInterval(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.reconnectInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a transport. The pool is owned by the caller.
func New(pool *pgxpool.Pool, opts ...Option) *Transport {
	t := &Transport{
		pool:              pool,
		reconnectInterval: time.Second,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logger.Component("transport.pg"))
	return t
}

// NewFromConfig creates a transport from configuration.
func NewFromConfig(pool *pgxpool.Pool, cfg Config, opts ...Option) *Transport {
	return New(pool, append([]Option{WithReconnectInterval(cfg.ReconnectInterval)}, opts...)...)
}

var _ transmit.Transport = (*Transport)(nil)

// Subscribe issues LISTEN on a dedicated connection and calls handler for
// every notification until ctx is done or the transport closes. A lost
// connection is re-established; notifications sent meanwhile are lost.
func (t *Transport) Subscribe(ctx context.Context, relayChannel string, handler func(raw []byte)) error {
	if err := validateChannel(relayChannel); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancels = append(t.cancels, cancel)
	t.mu.Unlock()

	conn, err := t.listen(ctx, relayChannel)
	if err != nil {
		cancel()
		return err
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.receive(ctx, conn, relayChannel, handler)
	}()

	return nil
}

func (t *Transport) listen(ctx context.Context, relayChannel string) (*pgxpool.Conn, error) {
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Join(ErrListenFailed, err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{relayChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, errors.Join(ErrListenFailed, err)
	}
	return conn, nil
}

func (t *Transport) receive(ctx context.Context, conn *pgxpool.Conn, relayChannel string, handler func(raw []byte)) {
	log := t.logger.With(slog.String("relay_channel", relayChannel))

	defer func() {
		if conn != nil {
			t.release(conn)
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.reconnectInterval):
			}

			var err error
			if conn, err = t.listen(ctx, relayChannel); err != nil {
				log.Warn("failed to re-listen", logger.Error(err))
				continue
			}
			log.Info("relay listener reconnected")
		}

		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("relay listener lost connection", logger.Error(err))
			t.release(conn)
			conn = nil
			continue
		}

		handler([]byte(n.Payload))
	}
}

// release returns a LISTEN connection to the pool. Connections interrupted
// mid-wait are closed by pgx and discarded by the pool.
func (t *Transport) release(conn *pgxpool.Conn) {
	if !conn.Conn().IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = conn.Exec(ctx, "UNLISTEN *")
		cancel()
	}
	conn.Release()
}

// Send notifies relayChannel with the encoded message.
func (t *Transport) Send(ctx context.Context, relayChannel string, msg transmit.Message) error {
	if err := validateChannel(relayChannel); err != nil {
		return err
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	raw, err := transmit.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if len(raw) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(raw))
	}

	if _, err := t.pool.Exec(ctx, "SELECT pg_notify($1, $2)", relayChannel, string(raw)); err != nil {
		return errors.Join(ErrNotifyFailed, err)
	}
	return nil
}

// Close stops all listeners and waits for them to release their connections.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancels := t.cancels
	t.cancels = nil
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	t.wg.Wait()
	return nil
}

func validateChannel(name string) error {
	if name == "" || len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}
	return nil
}
