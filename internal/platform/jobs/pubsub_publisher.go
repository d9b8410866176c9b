package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/pitta999/orderportal/internal/domain"
)

// orderEventMessage is the wire payload of an order event.
type orderEventMessage struct {
	EventID       string            `json:"eventId"`
	Type          string            `json:"type"`
	OrderID       string            `json:"orderId"`
	CustomerID    string            `json:"customerId"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"paymentStatus"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	ActorID       string            `json:"actorId,omitempty"`
	Version       int64             `json:"version"`
	OccurredAt    time.Time         `json:"occurredAt"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PubSubOrderEventPublisher publishes order lifecycle events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubOrderEventPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{topic: topic}, nil
}

// PublishOrderEvent publishes the event and waits for the server acknowledgement.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}

	data, err := json.Marshal(orderEventMessage{
		EventID:       event.ID,
		Type:          event.Type,
		OrderID:       event.OrderID,
		CustomerID:    event.CustomerID,
		Status:        string(event.Status),
		PaymentStatus: string(event.PaymentStatus),
		PaymentMethod: string(event.PaymentMethod),
		ActorID:       event.ActorID,
		Version:       event.Version,
		OccurredAt:    event.OccurredAt.UTC(),
		Metadata:      event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"eventType": event.Type,
			"orderId":   event.OrderID,
			"version":   strconv.FormatInt(event.Version, 10),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}
