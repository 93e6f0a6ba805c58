package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bgbye/bgbye/pkg/messaging"
)

// Forward returns a handler that republishes events as JSON on topic.
func Forward(broker messaging.MessageBroker, topic string) EventHandler {
	return func(ctx context.Context, event Event) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", event.ID, err)
		}
		if err := broker.Publish(topic, data); err != nil {
			return fmt.Errorf("forward event %s to %s: %w", event.EventType, topic, err)
		}
		return nil
	}
}

// Decode parses an event received from a broker.
func Decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}
