package stream

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// DefaultBufferSize is the default number of queued messages per stream.
	DefaultBufferSize = 64

	// DefaultKeepAlive is the default keep-alive interval.
	DefaultKeepAlive = 30 * time.Second
)

// base holds the connection-agnostic state shared by stream implementations:
// identity, outbound queue, open/closed flags and close callbacks.
type base struct {
	uid    string
	queue  chan Message
	done   chan struct{}
	opened atomic.Bool
	closed atomic.Bool

	mu       sync.Mutex
	onClose  []func()
	closeErr error

	keepAlive time.Duration
	logger    *slog.Logger
}

func newBase(uid string, cfg *config) (*base, error) {
	if uid == "" {
		return nil, ErrEmptyUID
	}

	return &base{
		uid:       uid,
		queue:     make(chan Message, cfg.bufferSize),
		done:      make(chan struct{}),
		keepAlive: cfg.keepAlive,
		logger:    cfg.logger,
	}, nil
}

// UID returns the externally supplied stream identifier.
func (b *base) UID() string {
	return b.uid
}

// Closed reports whether the stream has been closed.
func (b *base) Closed() bool {
	return b.closed.Load()
}

// Done returns a channel that is closed when the stream closes.
func (b *base) Done() <-chan struct{} {
	return b.done
}

// Write queues a message for delivery. It never blocks: a full queue drops
// the message and returns ErrBufferFull.
func (b *base) Write(msg Message) error {
	if b.closed.Load() {
		return ErrStreamClosed
	}

	select {
	case <-b.done:
		return ErrStreamClosed
	default:
	}

	select {
	case b.queue <- msg:
		return nil
	case <-b.done:
		return ErrStreamClosed
	default:
		return ErrBufferFull
	}
}

// OnClose registers a callback invoked once when the stream closes.
// Callbacks registered after close run immediately.
func (b *base) OnClose(fn func()) {
	if fn == nil {
		return
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		fn()
		return
	}
	b.onClose = append(b.onClose, fn)
	b.mu.Unlock()
}

// shutdown marks the stream closed and runs close callbacks in registration
// order. Only the first call has any effect.
func (b *base) shutdown(err error) bool {
	b.mu.Lock()
	if !b.closed.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return false
	}
	b.closeErr = err
	close(b.done)
	callbacks := b.onClose
	b.onClose = nil
	b.mu.Unlock()

	for _, fn := range callbacks {
		b.runCallback(fn)
	}
	return true
}

func (b *base) runCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("stream close callback panicked",
				slog.String("uid", b.uid),
				slog.Any("panic", r))
		}
	}()
	fn()
}

// config holds options shared by all stream implementations.
type config struct {
	bufferSize  int
	keepAlive   time.Duration
	noKeepAlive bool
	eventName   string
	idGen       func() string
	retry       int
	upgrader    *websocket.Upgrader
	logger      *slog.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{
		bufferSize: DefaultBufferSize,
		keepAlive:  DefaultKeepAlive,
		idGen:      uuid.NewString,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.noKeepAlive {
		cfg.keepAlive = 0
	}
	return cfg
}
