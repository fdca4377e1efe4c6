package events

import (
	"context"
	"fmt"
)

type amqpPublisher interface {
	Publish(ctx context.Context, key string, body []byte, messageID string) error
}

// RabbitPublisher routes by event type on the booking topic exchange.
type RabbitPublisher struct {
	pub amqpPublisher
}

func NewRabbitPublisher(pub amqpPublisher) *RabbitPublisher {
	return &RabbitPublisher{pub: pub}
}

func (p *RabbitPublisher) Publish(ctx context.Context, m Message) error {
	if err := p.pub.Publish(ctx, m.Type, m.Payload, m.ID); err != nil {
		return fmt.Errorf("rabbit publish %s: %w", m.Type, err)
	}
	return nil
}
