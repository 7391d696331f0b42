package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
)

// StatusPayload is the delivery-status body a subscriber receives. Field
// names are part of the external contract and must not change.
type StatusPayload struct {
	ID               string     `json:"id"`
	Reference        *string    `json:"reference"`
	To               string     `json:"to"`
	Status           string     `json:"status"`
	StatusReason     string     `json:"status_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	SentAt           *time.Time `json:"sent_at"`
	NotificationType string     `json:"notification_type"`
}

func NewStatusPayload(n *domain.Notification) StatusPayload {
	return StatusPayload{
		ID:               n.ID,
		Reference:        n.ClientReference,
		To:               n.Recipient,
		Status:           n.Status.String(),
		StatusReason:     n.StatusReason.String(),
		CreatedAt:        n.CreatedAt,
		CompletedAt:      n.CompletedAt,
		SentAt:           n.SentAt,
		NotificationType: n.Type.String(),
	}
}

// ComplaintPayload is the body a complaint subscriber receives.
type ComplaintPayload struct {
	NotificationID string    `json:"notification_id"`
	ComplaintID    string    `json:"complaint_id"`
	Reference      *string   `json:"reference"`
	To             string    `json:"to"`
	ComplaintDate  time.Time `json:"complaint_date"`
	ComplaintType  string    `json:"complaint_type,omitempty"`
}

func NewComplaintPayload(n *domain.Notification, c *domain.Complaint) ComplaintPayload {
	return ComplaintPayload{
		NotificationID: n.ID,
		ComplaintID:    c.ID,
		Reference:      n.ClientReference,
		To:             n.Recipient,
		ComplaintDate:  c.ComplaintDate,
		ComplaintType:  c.ComplaintType,
	}
}

func encodePayload(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal callback payload: %w", err)
	}
	return body, nil
}
