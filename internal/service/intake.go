package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/queue"
	"github.com/notify-platform/outcome-engine/internal/repository"
	"github.com/notify-platform/outcome-engine/internal/selector"
	"go.uber.org/zap"
)

// CreateParams carries one intake request. Provider pins come from the
// template or service configuration of the caller; either may be empty.
type CreateParams struct {
	ServiceID          string
	Type               domain.NotificationType
	Recipient          string
	ClientReference    *string
	International      bool
	TemplateProviderID *string
	ServiceProviderID  *string
}

// NotificationService accepts notifications, assigns a provider and hands
// them to the send worker.
type NotificationService struct {
	notifications repository.NotificationRepository
	selector      *selector.Selector
	publisher     queue.Publisher
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	sel *selector.Selector,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if sel == nil {
		return nil, fmt.Errorf("provider selector is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		selector:      sel,
		publisher:     publisher,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *NotificationService) Create(ctx context.Context, params CreateParams) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	provider, err := s.selector.GetProvider(
		ctx,
		params.Type,
		params.International,
		params.TemplateProviderID,
		params.ServiceProviderID,
	)
	if err != nil {
		return nil, err
	}

	notification := &domain.Notification{
		ID:              uuid.NewString(),
		ServiceID:       strings.TrimSpace(params.ServiceID),
		Type:            params.Type,
		ProviderID:      &provider.ID,
		ClientReference: normalizeOptionalString(params.ClientReference),
		Recipient:       strings.TrimSpace(params.Recipient),
		International:   params.International,
		Status:          domain.StatusCreated,
	}
	if err := notification.Validate(); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	msg, err := queue.SendMessage{NotificationID: notification.ID}.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, queue.QueueSend, msg); err != nil {
		s.logger.Error("failed to enqueue notification for sending",
			zap.String("notification_id", notification.ID),
			zap.Error(err))

		now := s.now().UTC()
		if _, _, applyErr := s.notifications.ApplyStatus(ctx, notification.ID, domain.StatusTechnicalFailure, domain.ReasonNone, now); applyErr != nil {
			s.logger.Error("failed to mark notification as technical-failure after publish error",
				zap.String("notification_id", notification.ID),
				zap.Error(applyErr))
		}
		return nil, fmt.Errorf("failed to enqueue notification: %w", err)
	}

	return notification, nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

func normalizeOptionalString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
