package transmit

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultRelayChannel is the relay channel used when none is configured.
const DefaultRelayChannel = "transmit::broadcast"

// Transport relays messages between Transmit instances.
//
// Send publishes one message to every instance subscribed to the relay
// channel, including the sender. Subscribe registers the inbound handler;
// raw is the JSON encoding produced by EncodeMessage.
type Transport interface {
	Subscribe(ctx context.Context, relayChannel string, handler func(raw []byte)) error
	Send(ctx context.Context, relayChannel string, msg Message) error
	Close() error
}

// EncodeMessage returns the relay wire encoding of msg: a JSON object with
// exactly the keys "channel" and "payload". A nil payload encodes as {}.
func EncodeMessage(msg Message) ([]byte, error) {
	if msg.Channel == "" {
		return nil, ErrEmptyChannel
	}
	if msg.Payload == nil {
		msg.Payload = Payload{}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return data, nil
}

// DecodeMessage parses a relay message produced by EncodeMessage.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Channel == "" {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyChannel)
	}
	if msg.Payload == nil {
		msg.Payload = Payload{}
	}
	return msg, nil
}
