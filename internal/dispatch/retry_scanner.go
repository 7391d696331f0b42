package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetryScanInterval = 5 * time.Second
	defaultRetryScanLimit    = 100
)

// RetryScanner periodically re-enqueues callback jobs whose retry timestamp
// has come due. The timestamp is cleared only after a successful publish so a
// crashed scan run simply re-enqueues on the next tick.
type RetryScanner struct {
	jobs      repository.CallbackJobRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
}

func NewRetryScanner(
	jobs repository.CallbackJobRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if jobs == nil {
		return nil, fmt.Errorf("callback job repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		jobs:      jobs,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
	}, nil
}

func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due retries do not wait for the first ticker edge.
	if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retry scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("retry scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	dueJobs, err := s.jobs.GetDueForRetry(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due callback jobs: %w", err)
	}

	for i := range dueJobs {
		job := dueJobs[i]

		msg, err := queue.CallbackMessage{JobID: job.ID}.Encode()
		if err != nil {
			s.logger.Error("failed to encode callback retry message",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}

		if err := s.publisher.Publish(ctx, queue.QueueCallbacks, msg); err != nil {
			s.logger.Error("failed to enqueue callback retry",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}

		if err := s.jobs.ClearNextRetryAt(ctx, job.ID); err != nil {
			s.logger.Error("failed to clear retry timestamp after enqueue",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}
	}

	return nil
}
