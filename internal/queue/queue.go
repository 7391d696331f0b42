package queue

import (
	"context"
	"errors"
	"fmt"
)

// Work queue names. Each carries one kind of short-lived unit of work so the
// webhook-facing path never blocks on downstream delivery.
const (
	// QueueSend carries notifications handed to the send worker.
	QueueSend = "send"
	// QueueProviderEvents carries normalized delivery/bounce/complaint events.
	QueueProviderEvents = "provider-events"
	// QueueCallbacks carries callback job ids for the dispatcher.
	QueueCallbacks = "callbacks"
	// QueuePlatformComplaints receives the internal copy of every complaint.
	QueuePlatformComplaints = "platform-complaints"
)

// ErrMalformedMessage marks a message that can never be processed; consumers
// reject it without requeue.
var ErrMalformedMessage = errors.New("malformed message")

// Message is the broker envelope shared by all work queues. Type carries the
// callback_type attribute on subscriber-facing publishes.
type Message struct {
	Body          []byte
	MessageID     string
	CorrelationID string
	Type          string
}

// Publisher publishes messages to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
	Close() error
}

// MessageHandler handles a consumed message.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer consumes messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// WorkQueueNames returns the queues drained by this process's workers.
func WorkQueueNames() []string {
	return []string{QueueSend, QueueProviderEvents, QueueCallbacks}
}

// DLQName returns the dead-letter queue name, e.g. dlq.callbacks.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// DLQNames returns the dead-letter queues for all work queues.
func DLQNames() []string {
	work := WorkQueueNames()
	queues := make([]string, 0, len(work))
	for _, name := range work {
		queues = append(queues, DLQName(name))
	}
	return queues
}

func isWorkQueue(queue string) bool {
	for _, name := range WorkQueueNames() {
		if name == queue {
			return true
		}
	}
	return queue == QueuePlatformComplaints
}
