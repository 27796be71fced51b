package stream

import (
	"log/slog"
	"time"
)

// Option configures a stream.
type Option func(*config)

// WithBufferSize sets the outbound queue size. Values below 1 are ignored.
func WithBufferSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// WithKeepAlive sets the keep-alive interval.
func WithKeepAlive(interval time.Duration) Option {
	return func(c *config) {
		if interval > 0 {
			c.keepAlive = interval
		}
	}
}

// WithoutKeepAlive disables keep-alive frames.
func WithoutKeepAlive() Option {
	return func(c *config) {
		c.noKeepAlive = true
	}
}

// WithEventName sets the SSE "event:" field for every message.
func WithEventName(name string) Option {
	return func(c *config) {
		c.eventName = name
	}
}

// WithEventIDGenerator sets the SSE "id:" generator. Pass nil to omit ids.
func WithEventIDGenerator(fn func() string) Option {
	return func(c *config) {
		c.idGen = fn
	}
}

// WithReconnectTime sets the client reconnection delay in milliseconds (SSE "retry:").
func WithReconnectTime(milliseconds int) Option {
	return func(c *config) {
		c.retry = milliseconds
	}
}

// WithLogger sets the stream logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
