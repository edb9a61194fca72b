// Package pubsub implements a Google Cloud Pub/Sub publisher for order events.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// Typed payloads expose an event type that is copied into message attributes.
type Typed interface {
	EventType() string
}

// Publisher wraps a Pub/Sub publisher client.
type Publisher struct {
	publisher *pubsub.Publisher
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Dial connects to projectID and returns a Publisher for topic along with a
// close function that flushes pending messages.
func Dial(ctx context.Context, projectID, topic string) (*Publisher, func() error, error) {
	if projectID == "" || topic == "" {
		return nil, nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := client.Publisher(topic)
	closeFn := func() error {
		pub.Stop()
		return client.Close()
	}
	return New(pub), closeFn, nil
}

// Publish marshals the payload to JSON and publishes it. The topic argument
// is ignored; the wrapped publisher is already bound to one.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	msg, err := buildMessage(payload)
	if err != nil {
		return "", err
	}
	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func buildMessage(payload any) (*pubsub.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	attrs := map[string]string{"content_type": "application/json"}
	if typed, ok := payload.(Typed); ok {
		attrs["event_type"] = typed.EventType()
	}
	return &pubsub.Message{Data: data, Attributes: attrs}, nil
}
