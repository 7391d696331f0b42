package domain

import (
	"fmt"
	"strings"
	"time"
)

// Complaint is a provider-reported recipient complaint (e.g. a spam report).
// Exactly one row is created per (notification, provider feedback id).
type Complaint struct {
	ID               string
	NotificationID   string
	ServiceID        string
	FeedbackID       string
	ComplaintType    string
	ComplaintSubtype string
	ComplaintDate    time.Time
	CreatedAt        time.Time
}

func (c *Complaint) Validate() error {
	if strings.TrimSpace(c.NotificationID) == "" {
		return fmt.Errorf("%w: notification id is required", ErrValidation)
	}
	if strings.TrimSpace(c.ServiceID) == "" {
		return fmt.Errorf("%w: service id is required", ErrValidation)
	}
	if strings.TrimSpace(c.FeedbackID) == "" {
		return fmt.Errorf("%w: feedback id is required", ErrValidation)
	}
	return nil
}
