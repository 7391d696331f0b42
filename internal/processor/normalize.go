package processor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
)

// sesNotification is the provider's delivery/bounce/complaint document. Only
// the fields the pipeline needs are decoded; recipient addresses and message
// headers are deliberately left out of the typed shape.
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	EventType        string `json:"eventType"`

	Mail struct {
		MessageID string    `json:"messageId"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"mail"`

	Bounce *struct {
		BounceType    string    `json:"bounceType"`
		BounceSubType string    `json:"bounceSubType"`
		Timestamp     time.Time `json:"timestamp"`
	} `json:"bounce"`

	Delivery *struct {
		Timestamp time.Time `json:"timestamp"`
	} `json:"delivery"`

	Complaint *struct {
		ComplaintFeedbackType string    `json:"complaintFeedbackType"`
		FeedbackID            string    `json:"feedbackId"`
		Timestamp             time.Time `json:"timestamp"`
	} `json:"complaint"`
}

// canonicalSubtypes maps provider bounce subtype spellings onto the internal
// taxonomy.
var canonicalSubtypes = map[string]string{
	"general":                  "general",
	"noemail":                  "no-email",
	"suppressed":               "suppressed",
	"onaccountsuppressionlist": "suppressed",
	"mailboxfull":              "mailbox-full",
	"messagetoolarge":          "message-too-large",
}

// Normalize turns a raw provider document into a canonical event. Recipient
// data never makes it into the returned event.
func Normalize(raw []byte) (domain.ProviderEvent, error) {
	var doc sesNotification
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.ProviderEvent{}, fmt.Errorf("failed to parse provider document: %w", err)
	}

	docType := doc.NotificationType
	if docType == "" {
		docType = doc.EventType
	}

	event := domain.ProviderEvent{
		ProviderReference: doc.Mail.MessageID,
		Timestamp:         doc.Mail.Timestamp,
	}

	switch strings.ToLower(strings.TrimSpace(docType)) {
	case "delivery":
		event.Kind = domain.EventDelivery
		if doc.Delivery != nil && !doc.Delivery.Timestamp.IsZero() {
			event.Timestamp = doc.Delivery.Timestamp
		}

	case "bounce":
		if doc.Bounce == nil {
			return domain.ProviderEvent{}, fmt.Errorf("bounce document without bounce block")
		}
		if strings.EqualFold(doc.Bounce.BounceType, "Permanent") {
			event.Kind = domain.EventHardBounce
		} else {
			event.Kind = domain.EventSoftBounce
		}
		event.BounceSubtype = canonicalSubtype(doc.Bounce.BounceSubType)
		if !doc.Bounce.Timestamp.IsZero() {
			event.Timestamp = doc.Bounce.Timestamp
		}

	case "complaint":
		if doc.Complaint == nil {
			return domain.ProviderEvent{}, fmt.Errorf("complaint document without complaint block")
		}
		event.Kind = domain.EventComplaint
		event.ComplaintSubtype = strings.ToLower(strings.TrimSpace(doc.Complaint.ComplaintFeedbackType))
		event.FeedbackID = doc.Complaint.FeedbackID
		if !doc.Complaint.Timestamp.IsZero() {
			event.Timestamp = doc.Complaint.Timestamp
		}

	default:
		return domain.ProviderEvent{}, fmt.Errorf("unsupported document type %q", docType)
	}

	if err := event.Validate(); err != nil {
		return domain.ProviderEvent{}, err
	}
	return event, nil
}

func canonicalSubtype(subtype string) string {
	key := strings.ToLower(strings.TrimSpace(subtype))
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, "_", "")
	if canonical, ok := canonicalSubtypes[key]; ok {
		return canonical
	}
	return strings.ToLower(strings.TrimSpace(subtype))
}

// piiFields are stripped from mail blocks before a document may be logged.
var piiFields = []string{"destination", "commonHeaders", "headers", "content", "source"}

// Scrub removes recipient addresses and message content from a raw provider
// document so it can be logged. On parse failure it returns a placeholder
// rather than the original bytes.
func Scrub(raw []byte) []byte {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []byte(`{"scrubbed":"unparseable document"}`)
	}

	if mail, ok := doc["mail"].(map[string]any); ok {
		for _, field := range piiFields {
			delete(mail, field)
		}
	}
	if complaintBlock, ok := doc["complaint"].(map[string]any); ok {
		delete(complaintBlock, "complainedRecipients")
	}
	if bounceBlock, ok := doc["bounce"].(map[string]any); ok {
		delete(bounceBlock, "bouncedRecipients")
	}

	scrubbed, err := json.Marshal(doc)
	if err != nil {
		return []byte(`{"scrubbed":"unparseable document"}`)
	}
	return scrubbed
}
