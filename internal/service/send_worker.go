package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/engine"
	"github.com/notify-platform/outcome-engine/internal/observability"
	"github.com/notify-platform/outcome-engine/internal/provider"
	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/ratelimit"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"go.uber.org/zap"
)

// SendWorker drains the send queue: each message moves a notification to
// sending, calls the provider and commits the provider reference the event
// pipeline will correlate on.
type SendWorker struct {
	notifications repository.NotificationRepository
	applier       OutcomeApplier
	client        provider.Client
	rateLimiter   ratelimit.RateLimiter
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// OutcomeApplier applies a status outcome to a notification.
type OutcomeApplier interface {
	Apply(ctx context.Context, notificationID string, status domain.Status, reason domain.StatusReason) (engine.Outcome, error)
}

func NewSendWorker(
	notifications repository.NotificationRepository,
	applier OutcomeApplier,
	client provider.Client,
	rateLimiter ratelimit.RateLimiter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*SendWorker, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if applier == nil {
		return nil, fmt.Errorf("outcome applier is required")
	}
	if client == nil {
		return nil, fmt.Errorf("provider client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SendWorker{
		notifications: notifications,
		applier:       applier,
		client:        client,
		rateLimiter:   rateLimiter,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// HandleSendMessage processes one send-queue delivery. Transient provider
// failures propagate so the broker redelivers; permanent failures finalize
// the notification as technical-failure.
func (w *SendWorker) HandleSendMessage(ctx context.Context, msg queue.Message) error {
	decoded, err := queue.DecodeSendMessage(msg)
	if err != nil {
		return err
	}

	notification, err := w.notifications.GetByID(ctx, decoded.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		w.logger.Warn("notification not found for send, skipping",
			zap.String("notification_id", decoded.NotificationID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load notification: %w", err)
	}

	// Redelivery may find the notification already past the send step.
	if notification.Status != domain.StatusCreated && notification.Status != domain.StatusSending {
		return nil
	}

	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(queue.QueueSend)
		defer w.metrics.DecWorkerInFlight(queue.QueueSend)
	}

	if w.rateLimiter != nil {
		if err := w.rateLimiter.Wait(ctx, strings.ToLower(notification.Type.String())); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	if _, err := w.applier.Apply(ctx, notification.ID, domain.StatusSending, domain.ReasonNone); err != nil {
		return fmt.Errorf("failed to mark notification sending: %w", err)
	}

	result, sendErr := w.client.Send(ctx, *notification)
	if sendErr != nil {
		if provider.IsTransient(sendErr) {
			w.logger.Warn("transient provider failure, message will be redelivered",
				zap.String("notification_id", notification.ID),
				zap.Error(sendErr))
			return sendErr
		}

		w.logger.Error("permanent provider failure",
			zap.String("notification_id", notification.ID),
			zap.Error(sendErr))
		if _, err := w.applier.Apply(ctx, notification.ID, domain.StatusTechnicalFailure, domain.ReasonNone); err != nil {
			return fmt.Errorf("failed to finalize failed send: %w", err)
		}
		return nil
	}

	if reference := strings.TrimSpace(result.ProviderReference); reference != "" {
		if err := w.notifications.SetProviderReference(ctx, notification.ID, reference); err != nil {
			return fmt.Errorf("failed to set provider reference: %w", err)
		}
	} else {
		w.logger.Warn("provider accepted send without a reference",
			zap.String("notification_id", notification.ID))
	}

	if _, err := w.applier.Apply(ctx, notification.ID, domain.StatusSent, domain.ReasonNone); err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	return nil
}
