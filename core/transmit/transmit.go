package transmit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/transmit/core/channel"
	"github.com/dmitrymomot/transmit/core/logger"
	"github.com/dmitrymomot/transmit/core/stream"
	"github.com/dmitrymomot/transmit/pkg/async"
)

// AuthContext describes a subscription request passed to an AuthorizeFunc.
type AuthContext struct {
	// UID of the stream asking to subscribe.
	UID string
	// Channel is the concrete channel name.
	Channel string
	// Pattern is the secured pattern the channel matched.
	Pattern string
	// Params holds the values captured by the pattern.
	Params channel.Params
	// Request is the originating HTTP request, nil outside the HTTP boundary.
	Request *http.Request
}

// AuthorizeFunc decides whether a stream may subscribe to a secured channel.
// Returning false denies with ErrForbidden; returning an error (or panicking)
// denies with ErrAuthorizationFault. It may block.
type AuthorizeFunc func(ctx context.Context, auth AuthContext) (bool, error)

// Stats is a point-in-time snapshot of a Transmit instance.
type Stats struct {
	Clients         int   `json:"clients"`
	Channels        int   `json:"channels"`
	Subscriptions   int   `json:"subscriptions"`
	SecuredPatterns int   `json:"secured_patterns"`
	Broadcasts      int64 `json:"broadcasts"`
	Relayed         int64 `json:"relayed"`
	Delivered       int64 `json:"delivered"`
	Dropped         int64 `json:"dropped"`
}

// Transmit is the broadcast orchestrator. It binds streams to channels,
// authorizes subscriptions to secured channels, fans messages out to local
// subscribers, and relays broadcasts across instances through an optional
// Transport.
type Transmit struct {
	id               string
	registry         *Registry
	matcher          *channel.Matcher
	hooks            *hooks
	transport        Transport
	relayChannel     string
	sendTimeout      time.Duration
	localFallback    bool
	quietUnsubscribe bool
	routePrefix      string
	streamOpts       []stream.Option
	logger           *slog.Logger

	authMu      sync.RWMutex
	authorizers map[string]AuthorizeFunc

	closed atomic.Bool
	cancel context.CancelFunc

	broadcasts atomic.Int64
	relayed    atomic.Int64
	delivered  atomic.Int64
	dropped    atomic.Int64
}

// New creates a Transmit. When a transport is configured, the inbound relay
// handler is subscribed before New returns.
func New(opts ...Option) (*Transmit, error) {
	t := &Transmit{
		id:           uuid.NewString(),
		registry:     NewRegistry(),
		matcher:      channel.NewMatcher(),
		relayChannel: DefaultRelayChannel,
		sendTimeout:  5 * time.Second,
		routePrefix:  DefaultRoutePrefix,
		authorizers:  make(map[string]AuthorizeFunc),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(t)
	}

	t.logger = t.logger.With(logger.Component("transmit"), slog.String("instance_id", t.id))
	t.hooks = newHooks(t.logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	if t.transport != nil {
		if err := t.transport.Subscribe(ctx, t.relayChannel, t.handleRelay); err != nil {
			cancel()
			return nil, errors.Join(ErrTransportSend, err)
		}
	}

	return t, nil
}

// NewFromConfig creates a Transmit from configuration. Additional options
// override config values.
func NewFromConfig(cfg Config, opts ...Option) (*Transmit, error) {
	configOpts := []Option{
		WithRelayChannel(cfg.RelayChannel),
		WithSendTimeout(cfg.SendTimeout),
	}
	if cfg.RoutePrefix != "" {
		configOpts = append(configOpts, WithRoutePrefix(cfg.RoutePrefix))
	}
	if cfg.PingInterval > 0 {
		configOpts = append(configOpts, WithStreamOptions(stream.WithKeepAlive(cfg.PingInterval)))
	} else {
		configOpts = append(configOpts, WithStreamOptions(stream.WithoutKeepAlive()))
	}
	if cfg.LocalFallback {
		configOpts = append(configOpts, WithLocalFallback())
	}
	if cfg.QuietUnsubscribe {
		configOpts = append(configOpts, WithQuietUnsubscribe())
	}

	return New(append(configOpts, opts...)...)
}

// ID returns the instance identifier.
func (t *Transmit) ID() string {
	return t.id
}

// Authorize secures every channel matching pattern with fn. Registering the
// same pattern again replaces its callback.
func (t *Transmit) Authorize(pattern string, fn AuthorizeFunc) error {
	if fn == nil {
		return ErrNilAuthorizer
	}

	def, err := t.matcher.Register(pattern)
	if err != nil {
		return err
	}

	t.authMu.Lock()
	t.authorizers[def.Pattern] = fn
	t.authMu.Unlock()

	return nil
}

// On registers a lifecycle listener and returns a function that removes it.
// Listeners for the same kind run in registration order.
func (t *Transmit) On(kind EventKind, fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	return t.hooks.on(kind, fn)
}

// Connect registers an open stream and emits a connect event. The stream is
// disconnected automatically when it closes. A uid that is already connected
// is rejected with ErrDuplicateStream.
func (t *Transmit) Connect(s Stream) error {
	if t.closed.Load() {
		return ErrClosed
	}

	if err := t.registry.Push(s); err != nil {
		t.logger.Warn("stream rejected", logger.UID(s.UID()), logger.Error(err))
		return err
	}

	t.logger.Debug("stream connected", logger.UID(s.UID()))
	t.hooks.emit(Event{Kind: EventConnect, UID: s.UID()})

	s.OnClose(func() { t.Disconnect(s) })

	return nil
}

// Disconnect emits a disconnect event and then removes the stream with all
// of its subscriptions. Listeners may still query the stream's
// subscriptions. Unknown streams are ignored, and concurrent calls for the
// same stream emit a single event.
func (t *Transmit) Disconnect(s Stream) {
	if !t.registry.Release(s) {
		return
	}

	t.hooks.emit(Event{Kind: EventDisconnect, UID: s.UID()})
	t.registry.Remove(s)

	t.logger.Debug("stream disconnected", logger.UID(s.UID()))
}

// Subscribe subscribes the stream to a channel. Channels matching a secured
// pattern are authorized first; all others are public.
//
// Errors: ErrForbidden when the callback denies, ErrAuthorizationFault when
// it fails, ErrUnknownStream when uid is not connected or closes during
// authorization.
func (t *Transmit) Subscribe(ctx context.Context, uid, ch string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if ch == "" {
		return ErrEmptyChannel
	}

	s, ok := t.registry.Get(uid)
	if !ok {
		return ErrUnknownStream
	}

	if def, params, secured := t.matcher.Match(ch); secured {
		auth := AuthContext{
			UID:     uid,
			Channel: ch,
			Pattern: def.Pattern,
			Params:  params,
			Request: RequestFromContext(ctx),
		}
		if err := t.authorize(ctx, s, auth); err != nil {
			return err
		}

		if cur, ok := t.registry.Get(uid); !ok || cur != s || s.Closed() {
			return ErrUnknownStream
		}
	}

	t.hooks.emit(Event{Kind: EventSubscribe, UID: uid, Channel: ch})

	if !t.registry.AddSubscription(uid, ch) {
		return ErrUnknownStream
	}
	return nil
}

func (t *Transmit) authorize(ctx context.Context, s Stream, auth AuthContext) error {
	t.authMu.RLock()
	fn := t.authorizers[auth.Pattern]
	t.authMu.RUnlock()

	if fn == nil {
		return ErrForbidden
	}

	start := time.Now()
	future := async.Async(ctx, auth, fn)

	select {
	case <-future.Done():
	case <-s.Done():
		t.logger.DebugContext(ctx, "stream closed during authorization",
			logger.UID(auth.UID), logger.Channel(auth.Channel))
		return ErrUnknownStream
	case <-ctx.Done():
		return errors.Join(ErrAuthorizationFault, ctx.Err())
	}

	allowed, err := future.Await()
	if err != nil {
		t.logger.ErrorContext(ctx, "channel authorization failed",
			logger.UID(auth.UID),
			logger.Channel(auth.Channel),
			slog.String("pattern", auth.Pattern),
			logger.Duration(time.Since(start)),
			logger.Error(err))
		return errors.Join(ErrAuthorizationFault, err)
	}

	if !allowed {
		t.logger.DebugContext(ctx, "channel subscription denied",
			logger.UID(auth.UID), logger.Channel(auth.Channel))
		return ErrForbidden
	}

	return nil
}

// Unsubscribe removes the stream's subscription to a channel and reports
// whether it existed. The unsubscribe event is emitted for every call unless
// WithQuietUnsubscribe is set.
func (t *Transmit) Unsubscribe(uid, ch string) bool {
	if !t.quietUnsubscribe {
		t.hooks.emit(Event{Kind: EventUnsubscribe, UID: uid, Channel: ch})
		return t.registry.RemoveSubscription(uid, ch)
	}

	removed := t.registry.RemoveSubscription(uid, ch)
	if removed {
		t.hooks.emit(Event{Kind: EventUnsubscribe, UID: uid, Channel: ch})
	}
	return removed
}

// Broadcast publishes payload to every subscriber of the channel. A nil
// payload is sent as an empty object.
//
// With a transport, the message is only relayed; every instance, this one
// included, delivers it locally when it comes back through the relay.
// Without a transport it is delivered locally right away. A relay failure
// is logged and returned wrapped in ErrTransportSend. A payload that cannot
// be encoded as JSON is rejected with ErrInvalidMessage before any delivery.
func (t *Transmit) Broadcast(ctx context.Context, ch string, payload Payload) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if ch == "" {
		return ErrEmptyChannel
	}

	payload = clonePayload(payload)
	if err := t.validate(ch, payload); err != nil {
		return err
	}
	t.broadcasts.Add(1)

	var err error
	if t.transport != nil {
		err = t.relay(ctx, Message{Channel: ch, Payload: payload})
	} else {
		t.broadcastLocal(ch, payload, nil)
	}

	t.hooks.emit(Event{Kind: EventBroadcast, Channel: ch, Payload: payload})

	return err
}

func (t *Transmit) relay(ctx context.Context, msg Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	defer cancel()

	sendErr := t.transport.Send(sendCtx, t.relayChannel, msg)
	if sendErr == nil {
		return nil
	}

	t.logger.ErrorContext(ctx, "failed to relay broadcast",
		logger.Channel(msg.Channel),
		slog.String("relay_channel", t.relayChannel),
		slog.Bool("local_fallback", t.localFallback),
		logger.Error(sendErr))

	if t.localFallback {
		t.broadcastLocal(msg.Channel, msg.Payload, nil)
	}

	return errors.Join(ErrTransportSend, sendErr)
}

// BroadcastExcept delivers payload to local subscribers of the channel,
// skipping the given uids. It never uses the transport. Payloads that cannot
// be encoded as JSON are rejected with ErrInvalidMessage.
func (t *Transmit) BroadcastExcept(ch string, payload Payload, exclude ...string) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if ch == "" {
		return ErrEmptyChannel
	}

	payload = clonePayload(payload)
	if err := t.validate(ch, payload); err != nil {
		return err
	}

	t.broadcastLocal(ch, payload, exclude)
	return nil
}

func (t *Transmit) validate(ch string, payload Payload) error {
	if _, err := EncodeMessage(Message{Channel: ch, Payload: payload}); err != nil {
		t.logger.Warn("rejected broadcast payload", logger.Channel(ch), logger.Error(err))
		return err
	}
	return nil
}

// broadcastLocal writes the message to every current subscriber not in
// exclude. Failed writes are skipped. Returns the number of deliveries.
func (t *Transmit) broadcastLocal(ch string, payload Payload, exclude []string) int {
	subscribers := t.registry.SubscribersOf(ch)
	if len(subscribers) == 0 {
		return 0
	}

	var skip map[string]struct{}
	if len(exclude) > 0 {
		skip = make(map[string]struct{}, len(exclude))
		for _, uid := range exclude {
			skip[uid] = struct{}{}
		}
	}

	msg := Message{Channel: ch, Payload: payload}
	delivered := 0

	for _, s := range subscribers {
		if _, ok := skip[s.UID()]; ok {
			continue
		}

		if err := s.Write(msg); err != nil {
			t.dropped.Add(1)
			t.logger.Debug("skipped subscriber",
				logger.UID(s.UID()), logger.Channel(ch), logger.Error(err))
			continue
		}
		delivered++
	}

	t.delivered.Add(int64(delivered))
	t.logger.Debug("broadcast delivered",
		logger.Channel(ch),
		logger.Subscribers(len(subscribers)),
		logger.Count("delivered", delivered))
	return delivered
}

// handleRelay is the inbound transport handler. Relayed messages are only
// ever delivered locally and never sent back to the transport.
func (t *Transmit) handleRelay(raw []byte) {
	msg, err := DecodeMessage(raw)
	if err != nil {
		t.logger.Warn("dropped relay message", logger.Error(err))
		return
	}

	t.relayed.Add(1)
	t.broadcastLocal(msg.Channel, msg.Payload, nil)
}

// Clients returns the uids of all connected streams.
func (t *Transmit) Clients() []string {
	return t.registry.UIDs()
}

// SubscriptionsOf returns the channels uid is subscribed to.
func (t *Transmit) SubscriptionsOf(uid string) []string {
	return t.registry.ChannelsOf(uid)
}

// Stats returns a snapshot of counters.
func (t *Transmit) Stats() Stats {
	return Stats{
		Clients:         t.registry.Len(),
		Channels:        t.registry.ChannelCount(),
		Subscriptions:   t.registry.SubscriptionCount(),
		SecuredPatterns: t.matcher.Len(),
		Broadcasts:      t.broadcasts.Load(),
		Relayed:         t.relayed.Load(),
		Delivered:       t.delivered.Load(),
		Dropped:         t.dropped.Load(),
	}
}

// Close stops the inbound relay subscription and closes every connected
// stream. The transport itself is not closed; it may be shared.
func (t *Transmit) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.cancel()

	streams := t.registry.Streams()
	var errs []error
	for _, s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
		t.Disconnect(s)
	}

	t.logger.Info("transmit closed",
		logger.Count("streams", len(streams)),
		logger.Errors(errs...))
	return errors.Join(errs...)
}

func clonePayload(p Payload) Payload {
	if p == nil {
		return Payload{}
	}
	return maps.Clone(p)
}

type requestContextKey struct{}

// WithRequest stores the HTTP request in ctx so that authorization callbacks
// can inspect it through AuthContext.Request.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestContextKey{}, r)
}

// RequestFromContext returns the request stored by WithRequest, or nil.
func RequestFromContext(ctx context.Context) *http.Request {
	r, _ := ctx.Value(requestContextKey{}).(*http.Request)
	return r
}
