package complaint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/notify-platform/outcome-engine/internal/dispatch"
	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/observability"
	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"go.uber.org/zap"
)

// CallbackScheduler enqueues a complaint callback for a subscribed service.
type CallbackScheduler interface {
	ScheduleComplaintCallback(ctx context.Context, n *domain.Notification, c *domain.Complaint, cfg *domain.ServiceCallbackConfig) error
}

// Publisher records provider complaints and fans them out. The complaint row
// is written exactly once per feedback id; the subscriber callback is
// optional, the internal platform copy is not.
type Publisher struct {
	complaints repository.ComplaintRepository
	configs    repository.CallbackConfigRepository
	scheduler  CallbackScheduler
	publisher  queue.Publisher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewPublisher(
	complaints repository.ComplaintRepository,
	configs repository.CallbackConfigRepository,
	scheduler CallbackScheduler,
	publisher queue.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Publisher, error) {
	if complaints == nil {
		return nil, fmt.Errorf("complaint repository is required")
	}
	if configs == nil {
		return nil, fmt.Errorf("callback config repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{
		complaints: complaints,
		configs:    configs,
		scheduler:  scheduler,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Publish stores the complaint and fans it out. A replayed event finds the
// existing row and fans out nothing. Fan-out failures are isolated from each
// other and from the event pipeline: the row has committed, so the caller
// must not replay the event.
func (p *Publisher) Publish(ctx context.Context, n *domain.Notification, event domain.ProviderEvent) error {
	complaint := &domain.Complaint{
		ID:               uuid.NewString(),
		NotificationID:   n.ID,
		ServiceID:        n.ServiceID,
		FeedbackID:       event.FeedbackID,
		ComplaintType:    event.ComplaintSubtype,
		ComplaintSubtype: event.ComplaintSubtype,
		ComplaintDate:    event.Timestamp,
	}
	if err := complaint.Validate(); err != nil {
		return err
	}

	created, err := p.complaints.CreateOnce(ctx, complaint)
	if err != nil {
		return fmt.Errorf("failed to store complaint: %w", err)
	}
	if !created {
		p.logger.Info("complaint already recorded, skipping fan-out",
			zap.String("notification_id", n.ID),
			zap.String("feedback_id", event.FeedbackID))
		return nil
	}

	if p.metrics != nil {
		p.metrics.IncComplaint()
	}
	p.logger.Info("complaint recorded",
		zap.String("notification_id", n.ID),
		zap.String("service_id", n.ServiceID),
		zap.String("complaint_id", complaint.ID))

	p.scheduleSubscriberCallback(ctx, n, complaint)
	p.forwardToPlatform(ctx, n, complaint)
	return nil
}

func (p *Publisher) scheduleSubscriberCallback(ctx context.Context, n *domain.Notification, c *domain.Complaint) {
	if p.scheduler == nil {
		return
	}

	cfg, err := p.configs.GetActive(ctx, n.ServiceID, domain.PurposeComplaint)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		p.logger.Error("failed to load complaint callback config",
			zap.String("service_id", n.ServiceID),
			zap.Error(err))
		return
	}

	if err := p.scheduler.ScheduleComplaintCallback(ctx, n, c, cfg); err != nil {
		p.logger.Error("failed to schedule complaint callback",
			zap.String("complaint_id", c.ID),
			zap.Error(err))
	}
}

// forwardToPlatform always publishes the internal copy, whether or not the
// service subscribed to complaint callbacks.
func (p *Publisher) forwardToPlatform(ctx context.Context, n *domain.Notification, c *domain.Complaint) {
	body, err := json.Marshal(dispatch.NewComplaintPayload(n, c))
	if err != nil {
		p.logger.Error("failed to encode platform complaint",
			zap.String("complaint_id", c.ID),
			zap.Error(err))
		return
	}

	msg := queue.Message{
		Body:      body,
		MessageID: c.ID,
		Type:      domain.PurposeComplaint.String(),
	}
	if err := p.publisher.Publish(ctx, queue.QueuePlatformComplaints, msg); err != nil {
		p.logger.Error("failed to forward complaint to platform queue",
			zap.String("complaint_id", c.ID),
			zap.Error(err))
	}
}
