package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CallbackPurpose identifies which events a subscriber callback receives.
type CallbackPurpose string

const (
	PurposeDeliveryStatus CallbackPurpose = "delivery_status"
	PurposeComplaint      CallbackPurpose = "complaint"
	PurposeInboundSMS     CallbackPurpose = "inbound_sms"
)

func (p CallbackPurpose) String() string { return string(p) }

func (p CallbackPurpose) IsValid() bool {
	switch p {
	case PurposeDeliveryStatus, PurposeComplaint, PurposeInboundSMS:
		return true
	}
	return false
}

// CallbackChannel is the transport a callback is delivered over.
type CallbackChannel string

const (
	ChannelWebhook CallbackChannel = "webhook"
	ChannelQueue   CallbackChannel = "queue"
)

func (c CallbackChannel) String() string { return string(c) }

func (c CallbackChannel) IsValid() bool {
	switch c {
	case ChannelWebhook, ChannelQueue:
		return true
	}
	return false
}

// MinBearerTokenLength is enforced before the token is sealed at rest.
const MinBearerTokenLength = 10

// ServiceCallbackConfig is a subscriber-registered callback destination.
// At most one active config exists per (service, purpose); the repository
// enforces this with a partial unique index.
type ServiceCallbackConfig struct {
	ID        string
	ServiceID string
	Purpose   CallbackPurpose
	Channel   CallbackChannel

	// URL is the webhook destination; only set for ChannelWebhook.
	URL string
	// QueueName is the broker destination; only set for ChannelQueue.
	QueueName string

	// BearerTokenSealed is the authentication secret, encrypted at rest.
	// It is decrypted transiently per dispatch attempt and never logged.
	BearerTokenSealed []byte

	// Statuses filters which delivery-status updates trigger a callback.
	// Empty means the completed-status default.
	Statuses []Status

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusFilter returns the effective status filter, falling back to the
// completed-status set when none was configured.
func (c *ServiceCallbackConfig) StatusFilter() []Status {
	if len(c.Statuses) == 0 {
		return CompletedStatuses()
	}
	return c.Statuses
}

// WantsStatus reports whether a status update should trigger this callback.
func (c *ServiceCallbackConfig) WantsStatus(status Status) bool {
	for _, s := range c.StatusFilter() {
		if s == status {
			return true
		}
	}
	return false
}

func (c *ServiceCallbackConfig) Validate() error {
	if strings.TrimSpace(c.ServiceID) == "" {
		return fmt.Errorf("%w: service id is required", ErrValidation)
	}
	if !c.Purpose.IsValid() {
		return fmt.Errorf("%w: invalid callback purpose %q", ErrValidation, c.Purpose)
	}
	if !c.Channel.IsValid() {
		return fmt.Errorf("%w: invalid callback channel %q", ErrValidation, c.Channel)
	}

	switch c.Channel {
	case ChannelWebhook:
		parsed, err := url.Parse(strings.TrimSpace(c.URL))
		if err != nil || parsed.Host == "" {
			return fmt.Errorf("%w: invalid callback url", ErrValidation)
		}
		if parsed.Scheme != "https" {
			return fmt.Errorf("%w: callback url must be https", ErrValidation)
		}
	case ChannelQueue:
		if strings.TrimSpace(c.QueueName) == "" {
			return fmt.Errorf("%w: queue name is required", ErrValidation)
		}
	}

	for _, s := range c.Statuses {
		if !s.IsValid() {
			return fmt.Errorf("%w: invalid status %q in callback filter", ErrValidation, s)
		}
	}

	return nil
}

// ValidateBearerToken checks the plaintext token before it is sealed.
func ValidateBearerToken(token string) error {
	if len(token) < MinBearerTokenLength {
		return fmt.Errorf("%w: bearer token must be at least %d characters", ErrValidation, MinBearerTokenLength)
	}
	return nil
}

// CallbackJobStatus tracks a persisted dispatch unit through its attempts.
type CallbackJobStatus string

const (
	JobPending   CallbackJobStatus = "pending"
	JobDelivered CallbackJobStatus = "delivered"
	JobFailed    CallbackJobStatus = "failed"
	JobExhausted CallbackJobStatus = "exhausted"
)

func (s CallbackJobStatus) String() string { return string(s) }

// DefaultCallbackMaxRetries bounds webhook redelivery: one original attempt
// plus five retries.
const DefaultCallbackMaxRetries = 5

// CallbackJob is one scheduled callback dispatch. The payload is sealed
// before the job is persisted so recipient data and tokens never sit in the
// jobs table or the broker in plaintext.
type CallbackJob struct {
	ID             string
	ConfigID       string
	NotificationID string
	Purpose        CallbackPurpose
	PayloadSealed  []byte
	Status         CallbackJobStatus
	AttemptCount   int
	MaxRetries     int
	NextRetryAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (j *CallbackJob) Validate() error {
	if strings.TrimSpace(j.ConfigID) == "" {
		return fmt.Errorf("%w: config id is required", ErrValidation)
	}
	if strings.TrimSpace(j.NotificationID) == "" {
		return fmt.Errorf("%w: notification id is required", ErrValidation)
	}
	if !j.Purpose.IsValid() {
		return fmt.Errorf("%w: invalid callback purpose %q", ErrValidation, j.Purpose)
	}
	if len(j.PayloadSealed) == 0 {
		return fmt.Errorf("%w: sealed payload is required", ErrValidation)
	}
	return nil
}
