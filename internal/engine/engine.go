package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/observability"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"go.uber.org/zap"
)

// Outcome reports what Apply did with a status update.
type Outcome int

const (
	// Applied means the update was persisted and side effects ran.
	Applied Outcome = iota
	// DuplicateNoOp means the notification was already terminal or the
	// update arrived out of order; nothing changed and no callback fired.
	DuplicateNoOp
)

// CallbackScheduler enqueues a delivery-status callback for a notification.
// Scheduling failures are the scheduler's to report; the engine only logs
// them because the status write has already committed.
type CallbackScheduler interface {
	ScheduleStatusCallback(ctx context.Context, n *domain.Notification, cfg *domain.ServiceCallbackConfig) error
}

// Engine applies delivery outcomes to notifications. All status writes in the
// subsystem funnel through Apply so the one-way lifecycle and the at-most-once
// callback rule hold regardless of which worker produced the update.
type Engine struct {
	notifications repository.NotificationRepository
	configs       repository.CallbackConfigRepository
	scheduler     CallbackScheduler
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewEngine(
	notifications repository.NotificationRepository,
	configs repository.CallbackConfigRepository,
	scheduler CallbackScheduler,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		notifications: notifications,
		configs:       configs,
		scheduler:     scheduler,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Apply transitions a notification to status. Terminal notifications and
// out-of-order updates return DuplicateNoOp without touching the record.
func (e *Engine) Apply(
	ctx context.Context,
	notificationID string,
	status domain.Status,
	reason domain.StatusReason,
) (Outcome, error) {
	if !status.IsValid() {
		return DuplicateNoOp, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	applied, notification, err := e.notifications.ApplyStatus(ctx, notificationID, status, reason, e.now().UTC())
	if err != nil {
		return DuplicateNoOp, fmt.Errorf("failed to apply status: %w", err)
	}

	if applied == repository.OutcomeDuplicate {
		if e.metrics != nil {
			e.metrics.IncDuplicateUpdate(status.String())
		}
		e.logger.Warn("duplicate status update ignored",
			zap.String("notification_id", notificationID),
			zap.String("current_status", notification.Status.String()),
			zap.String("requested_status", status.String()))
		return DuplicateNoOp, nil
	}

	if e.metrics != nil {
		e.metrics.IncStatusApplied(status.String())
	}
	e.logger.Info("status applied",
		zap.String("notification_id", notificationID),
		zap.String("status", status.String()),
		zap.String("status_reason", reason.String()))

	e.scheduleCallback(ctx, notification)

	return Applied, nil
}

// scheduleCallback fires at most once per applied update. The status write has
// already committed, so any failure here is logged and absorbed rather than
// surfaced as a processing error that would replay the event.
func (e *Engine) scheduleCallback(ctx context.Context, n *domain.Notification) {
	if e.scheduler == nil {
		return
	}

	cfg, err := e.configs.GetActive(ctx, n.ServiceID, domain.PurposeDeliveryStatus)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		e.logger.Error("failed to load callback config",
			zap.String("notification_id", n.ID),
			zap.String("service_id", n.ServiceID),
			zap.Error(err))
		return
	}

	if !cfg.WantsStatus(n.Status) {
		return
	}

	if err := e.scheduler.ScheduleStatusCallback(ctx, n, cfg); err != nil {
		e.logger.Error("failed to schedule status callback",
			zap.String("notification_id", n.ID),
			zap.String("config_id", cfg.ID),
			zap.Error(err))
	}
}
