package domain

import (
	"fmt"
	"strings"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusCreated          Status = "created"
	StatusSending          Status = "sending"
	StatusSent             Status = "sent"
	StatusDelivered        Status = "delivered"
	StatusTemporaryFailure Status = "temporary-failure"
	StatusPermanentFailure Status = "permanent-failure"
	StatusTechnicalFailure Status = "technical-failure"
	StatusCancelled        Status = "cancelled"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusSending, StatusSent, StatusDelivered,
		StatusTemporaryFailure, StatusPermanentFailure, StatusTechnicalFailure, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusPermanentFailure, StatusTechnicalFailure, StatusCancelled:
		return true
	}
	return false
}

// IsCompleted reports whether s counts as a completed status. Completed
// statuses form the default delivery-status callback filter.
func (s Status) IsCompleted() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusTemporaryFailure,
		StatusPermanentFailure, StatusTechnicalFailure, StatusCancelled:
		return true
	}
	return false
}

// CompletedStatuses returns the default callback filter set.
func CompletedStatuses() []Status {
	return []Status{
		StatusSent,
		StatusDelivered,
		StatusTemporaryFailure,
		StatusPermanentFailure,
		StatusTechnicalFailure,
		StatusCancelled,
	}
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// allowedTransitions is the one-way state machine. Terminal statuses have no
// entry: once reached they may only be reaffirmed, never overwritten.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusCreated: {
		StatusSending:          {},
		StatusSent:             {},
		StatusDelivered:        {},
		StatusTemporaryFailure: {},
		StatusPermanentFailure: {},
		StatusTechnicalFailure: {},
		StatusCancelled:        {},
	},
	StatusSending: {
		StatusSent:             {},
		StatusDelivered:        {},
		StatusTemporaryFailure: {},
		StatusPermanentFailure: {},
		StatusTechnicalFailure: {},
		StatusCancelled:        {},
	},
	StatusSent: {
		StatusDelivered:        {},
		StatusTemporaryFailure: {},
		StatusPermanentFailure: {},
		StatusTechnicalFailure: {},
	},
	StatusTemporaryFailure: {
		StatusSent:             {},
		StatusDelivered:        {},
		StatusTemporaryFailure: {},
		StatusPermanentFailure: {},
		StatusTechnicalFailure: {},
	},
}

// CanTransition reports whether the state machine permits moving from one
// status to another. Transitions out of a terminal status are never allowed.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// StatusReason sub-classifies why a status was reached.
type StatusReason string

const (
	ReasonNone                 StatusReason = ""
	ReasonUndeliverable        StatusReason = "undeliverable"
	ReasonRetryable            StatusReason = "retryable"
	ReasonUnknownBounceSubtype StatusReason = "unknown-bounce-subtype"
)

func (r StatusReason) String() string { return string(r) }

func (r StatusReason) IsValid() bool {
	switch r {
	case ReasonNone, ReasonUndeliverable, ReasonRetryable, ReasonUnknownBounceSubtype:
		return true
	}
	return false
}
