package handler

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/notify-platform/outcome-engine/internal/processor"
	"github.com/notify-platform/outcome-engine/internal/queue"
)

// WebhookHandler accepts raw delivery receipts from the upstream provider,
// normalizes them and hands them to the event queue. It always answers 200 so
// the provider never retries a document we cannot parse anyway.
type WebhookHandler struct {
	publisher queue.Publisher
	logger    *zap.Logger
}

func NewWebhookHandler(publisher queue.Publisher, logger *zap.Logger) (*WebhookHandler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{publisher: publisher, logger: logger}, nil
}

func RegisterWebhookRoutes(router fiber.Router, publisher queue.Publisher, logger *zap.Logger) error {
	h, err := NewWebhookHandler(publisher, logger)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/provider-events", h.ReceiveProviderEvent)

	return nil
}

func (h *WebhookHandler) ReceiveProviderEvent(c *fiber.Ctx) error {
	raw := c.Body()

	event, err := processor.Normalize(raw)
	if err != nil {
		h.logger.Warn("discarding unparseable provider event",
			zap.Error(err),
			zap.ByteString("document", processor.Scrub(raw)),
		)
		return c.SendStatus(fiber.StatusOK)
	}

	msg, err := queue.EventMessageFromDomain(event, 0).Encode()
	if err != nil {
		h.logger.Warn("discarding invalid provider event",
			zap.Error(err),
			zap.String("provider_reference", event.ProviderReference),
		)
		return c.SendStatus(fiber.StatusOK)
	}

	if err := h.publisher.Publish(c.Context(), queue.QueueProviderEvents, msg); err != nil {
		h.logger.Error("failed to enqueue provider event",
			zap.Error(err),
			zap.String("provider_reference", event.ProviderReference),
		)
		// A broker outage is the one failure the provider's own retry can
		// heal, so it gets a 503 instead of the usual unconditional 200.
		return fiber.NewError(fiber.StatusServiceUnavailable, "event queue unavailable")
	}

	h.logger.Info("provider event accepted",
		zap.String("provider_reference", event.ProviderReference),
		zap.String("kind", event.Kind.String()),
	)

	return c.SendStatus(fiber.StatusOK)
}
