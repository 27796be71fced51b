package transmit

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/transmit/core/stream"
)

// Option configures a Transmit.
type Option func(*Transmit)

// WithTransport enables cross-instance relay through the given transport.
func WithTransport(t Transport) Option {
	return func(tr *Transmit) {
		tr.transport = t
	}
}

// WithRelayChannel sets the transport channel shared by all instances.
func WithRelayChannel(name string) Option {
	return func(t *Transmit) {
		if name != "" {
			t.relayChannel = name
		}
	}
}

// WithSendTimeout bounds a single transport Send call.
func WithSendTimeout(d time.Duration) Option {
	return func(t *Transmit) {
		if d > 0 {
			t.sendTimeout = d
		}
	}
}

// WithLocalFallback delivers a broadcast to local subscribers when the
// transport fails to relay it. The send error is still returned.
func WithLocalFallback() Option {
	return func(t *Transmit) {
		t.localFallback = true
	}
}

// WithQuietUnsubscribe emits unsubscribe events only for subscriptions that
// actually existed. By default the event is emitted for every request.
func WithQuietUnsubscribe() Option {
	return func(t *Transmit) {
		t.quietUnsubscribe = true
	}
}

// WithInstanceID overrides the generated instance identifier.
func WithInstanceID(id string) Option {
	return func(t *Transmit) {
		if id != "" {
			t.id = id
		}
	}
}

// WithRoutePrefix sets the path prefix of the HTTP boundary routes.
func WithRoutePrefix(prefix string) Option {
	return func(t *Transmit) {
		prefix = "/" + strings.Trim(prefix, "/")
		if prefix != "/" {
			t.routePrefix = prefix
		}
	}
}

// WithStreamOptions sets options applied to streams created by the HTTP boundary.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(t *Transmit) {
		t.streamOpts = append(t.streamOpts, opts...)
	}
}

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transmit) {
		if logger != nil {
			t.logger = logger
		}
	}
}
