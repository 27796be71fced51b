// Package transmit is a publish/subscribe broadcast core for long-lived
// server-push connections.
//
// Clients hold a Stream open (SSE or websocket, see core/stream). Each stream
// subscribes to any number of channels. Publishers call Broadcast and every
// stream currently subscribed to the channel receives the payload.
//
// # Basic usage
//
//	t, err := transmit.New(transmit.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer t.Close()
//
//	mux.Handle("/__transmit/", t.Handler())
//
//	// Somewhere in application code:
//	err = t.Broadcast(ctx, "news", transmit.Payload{"title": "hello"})
//
// The HTTP boundary exposes:
//
//	GET  /__transmit/events?uid=...   open an SSE stream
//	GET  /__transmit/ws?uid=...       open a websocket stream
//	POST /__transmit/subscribe        {"uid":"...","channel":"..."}
//	POST /__transmit/unsubscribe      {"uid":"...","channel":"..."}
//
// # Secured channels
//
// Channels matching a pattern registered with Authorize require the callback
// to allow the subscription. Patterns are slash-delimited; ":name" segments
// capture values:
//
//	t.Authorize("users/:id", func(ctx context.Context, auth transmit.AuthContext) (bool, error) {
//		user, err := session.User(auth.Request)
//		if err != nil {
//			return false, err
//		}
//		return user.ID == auth.Params.Get("id"), nil
//	})
//
// The first registered pattern that matches wins, so register specific
// patterns before general ones. A false result yields ErrForbidden (HTTP 403);
// an error or panic yields ErrAuthorizationFault (HTTP 500). If the stream
// closes while the callback runs, the subscription is abandoned.
//
// # Multiple instances
//
// With a Transport every Broadcast is only relayed. Each instance, the
// sender included, delivers relayed messages to its own subscribers and never
// relays them again:
//
//	t, err := transmit.New(transmit.WithTransport(redistransport.New(client)))
//
// BroadcastExcept is always local, since exclusions are uids of this
// instance's streams.
//
// # Lifecycle events
//
// Listeners observe connect, disconnect, subscribe, unsubscribe and broadcast
// events synchronously and in registration order. A panicking listener is
// logged and skipped:
//
//	off := t.On(transmit.EventSubscribe, func(ev transmit.Event) {
//		log.Info("subscribed", "uid", ev.UID, "channel", ev.Channel)
//	})
//	defer off()
//
// Delivery is best-effort and at-most-once to streams connected at the time
// of the broadcast. Nothing is persisted.
package transmit
