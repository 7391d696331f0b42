package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/engine"
	"github.com/notify-platform/outcome-engine/internal/observability"
	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	// defaultGraceWindow bounds how long an event may wait for its
	// notification's provider reference to commit.
	defaultGraceWindow = 300 * time.Second
	// defaultRedeliveryDelay is the pause before an unresolved event goes
	// back onto the provider-events queue.
	defaultRedeliveryDelay = 30 * time.Second
	// maxEventAttempts caps grace-window redeliveries per event.
	maxEventAttempts = 5
)

// OutcomeApplier applies a status outcome to a notification.
type OutcomeApplier interface {
	Apply(ctx context.Context, notificationID string, status domain.Status, reason domain.StatusReason) (engine.Outcome, error)
}

// ComplaintSink records and fans out a complaint event.
type ComplaintSink interface {
	Publish(ctx context.Context, n *domain.Notification, event domain.ProviderEvent) error
}

// EventProcessor drains the provider-events queue, resolves each event to a
// notification and routes it to the status engine or the complaint publisher.
type EventProcessor struct {
	notifications   repository.NotificationRepository
	applier         OutcomeApplier
	complaints      ComplaintSink
	publisher       queue.Publisher
	metrics         *observability.Metrics
	logger          *zap.Logger
	graceWindow     time.Duration
	redeliveryDelay time.Duration
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

func NewEventProcessor(
	notifications repository.NotificationRepository,
	applier OutcomeApplier,
	complaints ComplaintSink,
	publisher queue.Publisher,
	graceWindow time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*EventProcessor, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if applier == nil {
		return nil, fmt.Errorf("outcome applier is required")
	}
	if complaints == nil {
		return nil, fmt.Errorf("complaint sink is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if graceWindow <= 0 {
		graceWindow = defaultGraceWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventProcessor{
		notifications:   notifications,
		applier:         applier,
		complaints:      complaints,
		publisher:       publisher,
		metrics:         metrics,
		logger:          logger,
		graceWindow:     graceWindow,
		redeliveryDelay: defaultRedeliveryDelay,
		now:             time.Now,
		sleep:           sleepWithContext,
	}, nil
}

// HandleEventMessage processes one provider-events delivery. Events whose
// provider reference has no matching notification yet are redelivered for the
// length of the grace window, then dropped with a warning.
func (p *EventProcessor) HandleEventMessage(ctx context.Context, msg queue.Message) error {
	decoded, err := queue.DecodeEventMessage(msg)
	if err != nil {
		return err
	}
	event := decoded.ToDomain()

	if p.metrics != nil {
		p.metrics.IncProviderEvent(event.Kind.String())
	}

	notification, err := p.notifications.GetByProviderReference(ctx, event.ProviderReference)
	if errors.Is(err, domain.ErrNotFound) {
		p.handleUnresolved(ctx, decoded)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve provider reference: %w", err)
	}

	switch event.Kind {
	case domain.EventDelivery:
		_, err = p.applier.Apply(ctx, notification.ID, domain.StatusDelivered, domain.ReasonNone)

	case domain.EventSoftBounce, domain.EventHardBounce:
		status, reason := event.BounceOutcome()
		_, err = p.applier.Apply(ctx, notification.ID, status, reason)

	case domain.EventComplaint:
		err = p.complaints.Publish(ctx, notification, event)

	default:
		return fmt.Errorf("%w: unsupported event kind %q", queue.ErrMalformedMessage, event.Kind)
	}

	// A validation failure cannot succeed on redelivery; dead-letter it
	// instead of requeueing forever.
	if errors.Is(err, domain.ErrValidation) {
		return fmt.Errorf("%w: %v", queue.ErrMalformedMessage, err)
	}
	return err
}

// handleUnresolved decides between a delayed redelivery and dropping the
// event. The send path commits the provider reference asynchronously, so a
// brief mismatch is normal; a reference still unknown after the grace window
// will never resolve.
func (p *EventProcessor) handleUnresolved(ctx context.Context, msg queue.EventMessage) {
	age := p.now().UTC().Sub(msg.Timestamp)
	if msg.Attempt >= maxEventAttempts || age > p.graceWindow {
		if p.metrics != nil {
			p.metrics.IncEventDropped()
		}
		p.logger.Warn("dropping event with unknown provider reference",
			zap.String("provider_reference", msg.ProviderReference),
			zap.String("kind", msg.Kind),
			zap.Int("attempt", msg.Attempt),
			zap.Duration("age", age))
		return
	}

	if p.metrics != nil {
		p.metrics.IncEventRetryScheduled()
	}
	p.logger.Info("provider reference not committed yet, scheduling redelivery",
		zap.String("provider_reference", msg.ProviderReference),
		zap.Int("attempt", msg.Attempt))

	redelivery := msg
	redelivery.Attempt++

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sleep(ctx, p.redeliveryDelay); err != nil {
			return
		}

		encoded, err := redelivery.Encode()
		if err != nil {
			p.logger.Error("failed to encode event redelivery", zap.Error(err))
			return
		}
		if err := p.publisher.Publish(ctx, queue.QueueProviderEvents, encoded); err != nil {
			p.logger.Error("failed to republish event",
				zap.String("provider_reference", redelivery.ProviderReference),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all in-flight redelivery timers have finished. Used
// during shutdown and in tests.
func (p *EventProcessor) Wait() {
	p.wg.Wait()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
