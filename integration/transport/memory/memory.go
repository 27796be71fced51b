// Package memory provides an in-process relay transport for transmit.
//
// Every Transmit instance sharing one Transport receives every message sent
// on a relay channel, the sender included. It is intended for tests and for
// running several orchestrators inside a single binary.
package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/transmit/core/logger"
	"github.com/dmitrymomot/transmit/core/transmit"
	"github.com/dmitrymomot/transmit/pkg/broadcast"
)

// DefaultBufferSize is the per-subscriber queue size.
const DefaultBufferSize = 256

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("memory transport is closed")

// Transport relays encoded messages through in-memory broadcasters, one per
// relay channel.
type Transport struct {
	mu         sync.Mutex
	channels   map[string]*broadcast.MemoryBroadcaster[[]byte]
	bufferSize int
	closed     bool
	logger     *slog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithBufferSize sets the per-subscriber queue size. Messages beyond it are dropped.
func WithBufferSize(size int) Option {
	return func(t *Transport) {
		if size > 0 {
			t.bufferSize = size
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

// New creates an in-memory transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		channels:   make(map[string]*broadcast.MemoryBroadcaster[[]byte]),
		bufferSize: DefaultBufferSize,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logger.Component("transport.memory"))
	return t
}

var _ transmit.Transport = (*Transport)(nil)

// Subscribe calls handler for every message sent on relayChannel until ctx is done.
// Handlers run sequentially in a dedicated goroutine.
func (t *Transport) Subscribe(ctx context.Context, relayChannel string, handler func(raw []byte)) error {
	b, err := t.broadcaster(relayChannel)
	if err != nil {
		return err
	}

	sub := b.Subscribe(ctx)
	messages := sub.Receive(ctx)

	go func() {
		defer sub.Close()
		for msg := range messages {
			handler(msg.Data)
		}
		t.logger.Debug("relay subscription ended", slog.String("relay_channel", relayChannel))
	}()

	return nil
}

// Send encodes msg and delivers it to every subscriber of relayChannel.
func (t *Transport) Send(ctx context.Context, relayChannel string, msg transmit.Message) error {
	raw, err := transmit.EncodeMessage(msg)
	if err != nil {
		return err
	}

	b, err := t.broadcaster(relayChannel)
	if err != nil {
		return err
	}

	if err := b.Broadcast(ctx, broadcast.Message[[]byte]{Data: raw}); err != nil {
		if errors.Is(err, broadcast.ErrBroadcasterClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Close ends every subscription. Further calls return ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for name, b := range t.channels {
		_ = b.Close()
		delete(t.channels, name)
	}
	return nil
}

func (t *Transport) broadcaster(relayChannel string) (*broadcast.MemoryBroadcaster[[]byte], error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	b, ok := t.channels[relayChannel]
	if !ok {
		b = broadcast.NewMemoryBroadcaster[[]byte](t.bufferSize)
		t.channels[relayChannel] = b
	}
	return b, nil
}
