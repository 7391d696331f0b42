package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/notify-platform/outcome-engine/internal/domain"
	"github.com/notify-platform/outcome-engine/internal/service"
)

type NotificationService interface {
	Create(ctx context.Context, params service.CreateParams) (*domain.Notification, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications/:id", h.GetNotification)

	return nil
}

type createNotificationRequest struct {
	ServiceID          string  `json:"serviceId"`
	Type               string  `json:"notificationType"`
	Recipient          string  `json:"recipient"`
	Reference          *string `json:"reference"`
	International      bool    `json:"international"`
	TemplateProviderID *string `json:"templateProviderId"`
	ServiceProviderID  *string `json:"serviceProviderId"`
}

type notificationResponse struct {
	ID                string     `json:"id"`
	ServiceID         string     `json:"serviceId"`
	Type              string     `json:"notificationType"`
	ProviderID        *string    `json:"providerId,omitempty"`
	ProviderReference *string    `json:"providerReference,omitempty"`
	Reference         *string    `json:"reference,omitempty"`
	Recipient         string     `json:"recipient"`
	International     bool       `json:"international"`
	Status            string     `json:"status"`
	StatusReason      string     `json:"statusReason,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), service.CreateParams{
		ServiceID:          strings.TrimSpace(req.ServiceID),
		Type:               notificationType,
		Recipient:          strings.TrimSpace(req.Recipient),
		ClientReference:    req.Reference,
		International:      req.International,
		TemplateProviderID: req.TemplateProviderID,
		ServiceProviderID:  req.ServiceProviderID,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:                n.ID,
		ServiceID:         n.ServiceID,
		Type:              n.Type.String(),
		ProviderID:        n.ProviderID,
		ProviderReference: n.ProviderReference,
		Reference:         n.ClientReference,
		Recipient:         n.Recipient,
		International:     n.International,
		Status:            n.Status.String(),
		StatusReason:      n.StatusReason.String(),
		CreatedAt:         n.CreatedAt,
		SentAt:            n.SentAt,
		CompletedAt:       n.CompletedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNoUsableProvider):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
