package provider

import (
	"context"

	"github.com/notify-platform/outcome-engine/internal/domain"
)

// Client is the outbound sending port. The returned reference is the
// provider's identifier for the accepted message; every later delivery,
// bounce and complaint event correlates through it.
type Client interface {
	Send(ctx context.Context, notification domain.Notification) (*SendResult, error)
}

// SendResult stores provider call metadata for persistence.
type SendResult struct {
	StatusCode        int
	ProviderReference string
}
