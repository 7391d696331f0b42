package service

import (
	"context"
	"fmt"
	"time"

	"github.com/notify-platform/outcome-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultArchiveInterval  = time.Hour
	defaultArchiveRetention = 7 * 24 * time.Hour
	defaultArchiveBatchSize = 500
)

// Archiver periodically moves completed notifications past the retention
// period from the live table into notification_history. Lookups by provider
// reference keep working after the move, so late events still resolve.
type Archiver struct {
	notifications repository.NotificationRepository
	logger        *zap.Logger
	interval      time.Duration
	retention     time.Duration
	batchSize     int
	now           func() time.Time
}

func NewArchiver(
	notifications repository.NotificationRepository,
	interval time.Duration,
	retention time.Duration,
	batchSize int,
	logger *zap.Logger,
) (*Archiver, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if interval <= 0 {
		interval = defaultArchiveInterval
	}
	if retention <= 0 {
		retention = defaultArchiveRetention
	}
	if batchSize <= 0 {
		batchSize = defaultArchiveBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Archiver{
		notifications: notifications,
		logger:        logger,
		interval:      interval,
		retention:     retention,
		batchSize:     batchSize,
		now:           time.Now,
	}, nil
}

func (a *Archiver) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.archiveOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.Error("archive run failed", zap.Error(err))
			}
		}
	}
}

func (a *Archiver) archiveOnce(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-a.retention)

	total := 0
	for {
		moved, err := a.notifications.ArchiveBefore(ctx, cutoff, a.batchSize)
		if err != nil {
			return fmt.Errorf("failed to archive notifications: %w", err)
		}
		total += moved
		if moved < a.batchSize {
			break
		}
	}

	if total > 0 {
		a.logger.Info("archived completed notifications",
			zap.Int("count", total),
			zap.Time("cutoff", cutoff))
	}
	return nil
}
