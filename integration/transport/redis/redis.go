// Package redis relays transmit broadcasts between instances over Redis Pub/Sub.
//
//	client, err := redis.Connect(ctx, redisCfg) // integration/database/redis
//	relay := redistransport.New(client, redistransport.WithLogger(log))
//	t, err := transmit.New(transmit.WithTransport(relay))
//
// Pub/Sub delivery is at-most-once: instances that are disconnected from
// Redis while a message is published never see it.
package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/transmit/core/logger"
	"github.com/dmitrymomot/transmit/core/transmit"
)

var (
	ErrClosed          = errors.New("redis transport is closed")
	ErrSubscribeFailed = errors.New("failed to subscribe to redis channel")
	ErrPublishFailed   = errors.New("failed to publish to redis channel")
)

// Config holds transport settings.
type Config struct {
	// Prefix is prepended to every relay channel name.
	Prefix string `env:"TRANSMIT_REDIS_PREFIX" envDefault:""`
	// BufferSize is the go-redis Pub/Sub channel size.
	BufferSize int `env:"TRANSMIT_REDIS_BUFFER_SIZE" envDefault:"100"`
}

// Transport implements transmit.Transport on a go-redis client.
type Transport struct {
	client     redis.UniversalClient
	prefix     string
	bufferSize int
	logger     *slog.Logger

	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithPrefix namespaces relay channels, e.g. per environment.
func WithPrefix(prefix string) Option {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// WithBufferSize sets the Pub/Sub receive buffer.
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

// New creates a transport. The client is owned by the caller and is not
// closed by Close.
func New(client redis.UniversalClient, opts ...Option) *Transport {
	t := &Transport{
		client:     client,
		bufferSize: 100,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(logger.Component("transport.redis"))
	return t
}

// NewFromConfig creates a transport from configuration.
func NewFromConfig(client redis.UniversalClient, cfg Config, opts ...Option) *Transport {
	return New(client, append([]Option{WithPrefix(cfg.Prefix), WithBufferSize(cfg.BufferSize)}, opts...)...)
}

var _ transmit.Transport = (*Transport)(nil)

// Subscribe listens on relayChannel and calls handler for every payload until
// ctx is done or the transport closes. The subscription is confirmed before
// Subscribe returns.
func (t *Transport) Subscribe(ctx context.Context, relayChannel string, handler func(raw []byte)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.mu.Unlock()

	name := t.channelName(relayChannel)
	pubsub := t.client.Subscribe(ctx, name)

	// Receive blocks until the server confirms the subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return errors.Join(ErrSubscribeFailed, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = pubsub.Close()
		return ErrClosed
	}
	t.subs = append(t.subs, pubsub)
	t.wg.Add(1)
	t.mu.Unlock()

	messages := pubsub.Channel(redis.WithChannelSize(t.bufferSize))

	go func() {
		defer t.wg.Done()
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	t.logger.Debug("subscribed to relay channel", slog.String("relay_channel", name))
	return nil
}

// Send publishes the encoded message on relayChannel.
func (t *Transport) Send(ctx context.Context, relayChannel string, msg transmit.Message) error {
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

	if err := t.client.Publish(ctx, t.channelName(relayChannel), raw).Err(); err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	return nil
}

// Close ends all subscriptions and waits for their goroutines.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.wg.Wait()
	return errors.Join(errs...)
}

func (t *Transport) channelName(relayChannel string) string {
	return t.prefix + relayChannel
}
