package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/notify-platform/outcome-engine/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg Message) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if len(msg.Body) == 0 {
		return fmt.Errorf("message body is required")
	}

	if msg.CorrelationID == "" {
		if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
			msg.CorrelationID = correlationID
		}
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	// Subscriber queue-channel destinations are not part of our topology;
	// declare them durable on first publish.
	if !isWorkQueue(queue) {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare destination queue %q: %w", queue, err)
		}
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     msg.MessageID,
		CorrelationId: msg.CorrelationID,
		Type:          msg.Type,
		Body:          msg.Body,
	}

	if err := ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
