package transmit

import "github.com/dmitrymomot/transmit/core/stream"

// Message is a channel event delivered to streams and relayed between instances.
type Message = stream.Message

// Payload is a string-keyed map of JSON-compatible values.
type Payload = stream.Payload

// Stream is one client's long-lived, writable connection.
// The implementations in core/stream satisfy it. Streams are compared by
// identity, so implementations must be comparable (typically pointers).
type Stream interface {
	// UID returns the externally supplied, stable stream identifier.
	UID() string
	// Write pushes one message. It must return an error, not panic, after close.
	Write(Message) error
	// OnClose registers a one-shot callback fired when the connection terminates.
	OnClose(func())
	// Done is closed when the stream closes.
	Done() <-chan struct{}
	// Closed reports whether the stream has been closed.
	Closed() bool
	// Close terminates the connection.
	Close() error
}
