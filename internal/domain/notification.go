package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType represents the outbound communication channel.
type NotificationType string

const (
	TypeEmail  NotificationType = "email"
	TypeSMS    NotificationType = "sms"
	TypeLetter NotificationType = "letter"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeEmail, TypeSMS, TypeLetter:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	t := NotificationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// Notification is a single unit of outbound communication with a lifecycle
// status. The same shape backs both the live table and the archival
// notification_history table.
type Notification struct {
	ID                string
	ServiceID         string
	Type              NotificationType
	ProviderID        *string
	ProviderReference *string
	ClientReference   *string
	Recipient         string
	International     bool
	Status            Status
	StatusReason      StatusReason
	CreatedAt         time.Time
	SentAt            *time.Time
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

func (n *Notification) Validate() error {
	if strings.TrimSpace(n.ServiceID) == "" {
		return fmt.Errorf("%w: service id is required", ErrValidation)
	}
	if strings.TrimSpace(n.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	if !n.StatusReason.IsValid() {
		return fmt.Errorf("%w: invalid status reason %q", ErrValidation, n.StatusReason)
	}
	return nil
}
