package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"github.com/notify-platform/outcome-engine/internal/secrets"
	"go.uber.org/zap"
)

// Scheduler turns an applied outcome into a persisted callback job and hands
// it to the dispatcher via the callbacks queue. Jobs are created with an
// immediate next_retry_at so a publish failure only delays delivery until the
// retry scanner picks the job up.
type Scheduler struct {
	jobs       repository.CallbackJobRepository
	publisher  queue.Publisher
	box        *secrets.Box
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

func NewScheduler(
	jobs repository.CallbackJobRepository,
	publisher queue.Publisher,
	box *secrets.Box,
	maxRetries int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("callback job repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if box == nil {
		return nil, fmt.Errorf("secret box is required")
	}
	if maxRetries < 0 {
		maxRetries = domain.DefaultCallbackMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		jobs:       jobs,
		publisher:  publisher,
		box:        box,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *Scheduler) ScheduleStatusCallback(
	ctx context.Context,
	n *domain.Notification,
	cfg *domain.ServiceCallbackConfig,
) error {
	body, err := encodePayload(NewStatusPayload(n))
	if err != nil {
		return err
	}
	return s.schedule(ctx, n.ID, cfg, domain.PurposeDeliveryStatus, body)
}

func (s *Scheduler) ScheduleComplaintCallback(
	ctx context.Context,
	n *domain.Notification,
	c *domain.Complaint,
	cfg *domain.ServiceCallbackConfig,
) error {
	body, err := encodePayload(NewComplaintPayload(n, c))
	if err != nil {
		return err
	}
	return s.schedule(ctx, n.ID, cfg, domain.PurposeComplaint, body)
}

func (s *Scheduler) schedule(
	ctx context.Context,
	notificationID string,
	cfg *domain.ServiceCallbackConfig,
	purpose domain.CallbackPurpose,
	body []byte,
) error {
	sealed, err := s.box.Seal(body)
	if err != nil {
		return fmt.Errorf("failed to seal callback payload: %w", err)
	}

	now := s.now().UTC()
	job := &domain.CallbackJob{
		ID:             uuid.NewString(),
		ConfigID:       cfg.ID,
		NotificationID: notificationID,
		Purpose:        purpose,
		PayloadSealed:  sealed,
		Status:         domain.JobPending,
		MaxRetries:     s.maxRetries,
		NextRetryAt:    &now,
	}
	if err := job.Validate(); err != nil {
		return err
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to persist callback job: %w", err)
	}

	msg, err := queue.CallbackMessage{JobID: job.ID}.Encode()
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, queue.QueueCallbacks, msg); err != nil {
		// The job still carries next_retry_at, so the scanner republishes it.
		s.logger.Warn("failed to publish callback job, leaving it for the retry scanner",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return nil
	}

	if err := s.jobs.ClearNextRetryAt(ctx, job.ID); err != nil {
		s.logger.Warn("failed to clear retry timestamp after publish",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
	return nil
}
