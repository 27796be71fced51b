// Package stream implements long-lived server-push connections for the
// transmit broadcast core.
//
// Two transports are provided:
//   - SSE: Server-Sent Events over a flushing http.ResponseWriter
//   - WebSocket: JSON text frames over gorilla/websocket
//
// Both share the same lifecycle: create, Open, Serve, Close. Write is safe
// from any goroutine and never blocks; messages are queued and flushed by
// Serve, which must run in the request handler goroutine:
//
//	func events(w http.ResponseWriter, r *http.Request) {
//		s, err := stream.NewSSE(r.URL.Query().Get("uid"), w,
//			stream.WithKeepAlive(15*time.Second),
//		)
//		if err != nil {
//			http.Error(w, err.Error(), http.StatusBadRequest)
//			return
//		}
//		if err := s.Open(nil); err != nil {
//			return
//		}
//		s.OnClose(func() { log.Println("client gone", s.UID()) })
//		_ = s.Serve(r.Context())
//	}
//
// # Closing
//
// A stream closes when the request context ends, when Close is called, or
// when a write to the client fails. OnClose callbacks run exactly once, in
// registration order, in the goroutine that closed the stream. After close,
// Write returns ErrStreamClosed.
//
// # Slow consumers
//
// Each stream owns a bounded queue (DefaultBufferSize). When it is full,
// Write drops the message and returns ErrBufferFull so that one slow client
// cannot stall a broadcast.
//
// # Wire format
//
// Every message is the JSON encoding of Message:
//
//	data: {"channel":"rooms/42","payload":{"text":"hi"}}
//
// SSE events carry a UUID "id:" field by default; use
// WithEventIDGenerator(nil) to omit it.
package stream
