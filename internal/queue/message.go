package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
)

// SendMessage asks the send worker to hand a notification to its provider.
type SendMessage struct {
	NotificationID string `json:"notificationId"`
}

func (m SendMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	return nil
}

func (m SendMessage) Encode() (Message, error) {
	if err := m.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid send message: %w", err)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal send message: %w", err)
	}
	return Message{Body: body, MessageID: m.NotificationID}, nil
}

func DecodeSendMessage(msg Message) (SendMessage, error) {
	var m SendMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		return SendMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return SendMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

// EventMessage is a normalized provider event in flight. Attempt counts
// grace-window redeliveries for references that have not committed yet.
type EventMessage struct {
	Kind              string    `json:"kind"`
	ProviderReference string    `json:"providerReference"`
	Timestamp         time.Time `json:"timestamp"`
	BounceSubtype     string    `json:"bounceSubtype,omitempty"`
	ComplaintSubtype  string    `json:"complaintSubtype,omitempty"`
	FeedbackID        string    `json:"feedbackId,omitempty"`
	Attempt           int       `json:"attempt"`
}

func EventMessageFromDomain(e domain.ProviderEvent, attempt int) EventMessage {
	return EventMessage{
		Kind:              e.Kind.String(),
		ProviderReference: e.ProviderReference,
		Timestamp:         e.Timestamp,
		BounceSubtype:     e.BounceSubtype,
		ComplaintSubtype:  e.ComplaintSubtype,
		FeedbackID:        e.FeedbackID,
		Attempt:           attempt,
	}
}

func (m EventMessage) ToDomain() domain.ProviderEvent {
	return domain.ProviderEvent{
		Kind:              domain.EventKind(m.Kind),
		ProviderReference: m.ProviderReference,
		Timestamp:         m.Timestamp,
		BounceSubtype:     m.BounceSubtype,
		ComplaintSubtype:  m.ComplaintSubtype,
		FeedbackID:        m.FeedbackID,
	}
}

func (m EventMessage) Validate() error {
	event := m.ToDomain()
	if err := event.Validate(); err != nil {
		return err
	}
	if m.Attempt < 0 {
		return fmt.Errorf("attempt must not be negative")
	}
	return nil
}

func (m EventMessage) Encode() (Message, error) {
	if err := m.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid event message: %w", err)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal event message: %w", err)
	}
	return Message{Body: body, MessageID: m.ProviderReference}, nil
}

func DecodeEventMessage(msg Message) (EventMessage, error) {
	var m EventMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		return EventMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return EventMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

// CallbackMessage points the dispatcher at a persisted callback job.
type CallbackMessage struct {
	JobID string `json:"jobId"`
}

func (m CallbackMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	return nil
}

func (m CallbackMessage) Encode() (Message, error) {
	if err := m.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid callback message: %w", err)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal callback message: %w", err)
	}
	return Message{Body: body, MessageID: m.JobID}, nil
}

func DecodeCallbackMessage(msg Message) (CallbackMessage, error) {
	var m CallbackMessage
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		return CallbackMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.Validate(); err != nil {
		return CallbackMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}
