package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventKind classifies a normalized provider event.
type EventKind string

const (
	EventDelivery   EventKind = "delivery"
	EventSoftBounce EventKind = "soft-bounce"
	EventHardBounce EventKind = "hard-bounce"
	EventComplaint  EventKind = "complaint"
)

func (k EventKind) String() string { return string(k) }

func (k EventKind) IsValid() bool {
	switch k {
	case EventDelivery, EventSoftBounce, EventHardBounce, EventComplaint:
		return true
	}
	return false
}

// ProviderEvent is the canonical form of an inbound delivery, bounce or
// complaint document. Recipient addresses and message content are stripped
// during normalization and never reach this struct.
type ProviderEvent struct {
	Kind              EventKind
	ProviderReference string
	Timestamp         time.Time
	BounceSubtype     string
	ComplaintSubtype  string
	FeedbackID        string
}

func (e *ProviderEvent) Validate() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: invalid event kind %q", ErrValidation, e.Kind)
	}
	if strings.TrimSpace(e.ProviderReference) == "" {
		return fmt.Errorf("%w: provider reference is required", ErrValidation)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: event timestamp is required", ErrValidation)
	}
	// A complaint without a feedback id can never produce a complaint row,
	// so it must be rejected before it reaches a queue.
	if e.Kind == EventComplaint && strings.TrimSpace(e.FeedbackID) == "" {
		return fmt.Errorf("%w: feedback id is required for complaint events", ErrValidation)
	}
	return nil
}

// BounceOutcome maps a bounce event onto the status taxonomy. Hard bounces
// become permanent-failure/undeliverable, soft bounces temporary-failure/
// retryable. Unrecognized subtypes keep the bounce class the provider
// declared but carry the unknown-bounce-subtype reason.
func (e *ProviderEvent) BounceOutcome() (Status, StatusReason) {
	subtype := strings.ToLower(strings.TrimSpace(e.BounceSubtype))

	switch subtype {
	case "general", "no-email", "suppressed":
		return StatusPermanentFailure, ReasonUndeliverable
	case "mailbox-full", "message-too-large":
		return StatusTemporaryFailure, ReasonRetryable
	}

	if e.Kind == EventHardBounce {
		return StatusPermanentFailure, ReasonUnknownBounceSubtype
	}
	return StatusTemporaryFailure, ReasonUnknownBounceSubtype
}
