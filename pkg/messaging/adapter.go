package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/tenant-billing/internal/model"
)

// EventPublisher publishes outbox rows to one channel.
type EventPublisher struct {
	broker  Broker
	channel string
}

func NewEventPublisher(broker Broker, channel string) *EventPublisher {
	return &EventPublisher{broker: broker, channel: channel}
}

func (p *EventPublisher) Channel() string {
	return p.channel
}

// PublishEvent wraps event in a Message envelope and publishes it.
func (p *EventPublisher) PublishEvent(ctx context.Context, event *model.OutboxEvent) error {
	data, err := json.Marshal(Message{
		ID:         event.ID,
		Type:       event.EventType,
		OrgID:      event.OrgID,
		Payload:    json.RawMessage(event.Payload),
		OccurredAt: event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.broker.Publish(ctx, p.channel, data)
}

// Decode parses a message received from Subscribe.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &msg, nil
}
