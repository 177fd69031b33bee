package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/portal/core"
	"github.com/layer-3/portal/ports"
)

// DefaultTopic carries client and server session events
const DefaultTopic = "portal.session"

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// Publish publishes a session event
func (p *WatermillPublisher) Publish(ctx context.Context, event core.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("kind", string(event.Kind))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Decode parses a message produced by WatermillPublisher
func Decode(msg *message.Message) (core.Event, error) {
	var event core.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return core.Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}

// Discard drops every event
type Discard struct{}

// Publish implements ports.EventPublisher
func (Discard) Publish(context.Context, core.Event) error { return nil }
