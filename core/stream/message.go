package stream

// Payload is a string-keyed map of JSON-compatible values.
type Payload map[string]any

// Message is a single channel event pushed to a client.
// It is also the wire format for cross-instance relay.
type Message struct {
	Channel string  `json:"channel"`
	Payload Payload `json:"payload"`
}
