package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Encode wraps event in a JSON message bound to ctx.
func Encode[T any](ctx context.Context, event *T) (*message.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	return msg, nil
}

// Decode reads the JSON payload of msg into a new T.
func Decode[T any](msg *message.Message) (*T, error) {
	event := new(T)
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", msg.UUID, err)
	}

	return event, nil
}
