package repository

import (
	"strings"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
// The archival notification_history table shares this shape; repositories
// address it with Table(notificationHistoryTable).
type NotificationModel struct {
	ID                string                  `gorm:"type:uuid;primaryKey"`
	ServiceID         string                  `gorm:"type:uuid;not null"`
	Type              domain.NotificationType `gorm:"type:varchar(10);not null"`
	ProviderID        *string                 `gorm:"type:uuid"`
	ProviderReference *string                 `gorm:"type:varchar(255)"`
	ClientReference   *string                 `gorm:"type:varchar(255)"`
	Recipient         string                  `gorm:"type:varchar(255);not null"`
	International     bool                    `gorm:"not null;default:false"`
	Status            domain.Status           `gorm:"type:varchar(20);not null"`
	StatusReason      domain.StatusReason     `gorm:"type:varchar(30);not null;default:''"`
	CreatedAt         time.Time
	SentAt            *time.Time
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

const notificationHistoryTable = "notification_history"

// ServiceCallbackConfigModel is the persistence model for
// service_callback_configs. A partial unique index keeps at most one active
// row per (service, purpose).
type ServiceCallbackConfigModel struct {
	ID                string                 `gorm:"type:uuid;primaryKey"`
	ServiceID         string                 `gorm:"type:uuid;not null"`
	Purpose           domain.CallbackPurpose `gorm:"type:varchar(20);not null"`
	Channel           domain.CallbackChannel `gorm:"type:varchar(10);not null"`
	URL               string                 `gorm:"type:varchar(500)"`
	QueueName         string                 `gorm:"type:varchar(255)"`
	BearerTokenSealed []byte                 `gorm:"type:bytea;not null"`
	Statuses          string                 `gorm:"type:text;not null;default:''"`
	Active            bool                   `gorm:"not null;default:true"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (ServiceCallbackConfigModel) TableName() string {
	return "service_callback_configs"
}

// ComplaintModel is the persistence model for complaints. A unique index on
// (notification_id, feedback_id) makes complaint creation idempotent.
type ComplaintModel struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	NotificationID   string `gorm:"type:uuid;not null"`
	ServiceID        string `gorm:"type:uuid;not null"`
	FeedbackID       string `gorm:"type:varchar(255);not null"`
	ComplaintType    string `gorm:"type:varchar(50)"`
	ComplaintSubtype string `gorm:"type:varchar(50)"`
	ComplaintDate    time.Time
	CreatedAt        time.Time
}

func (ComplaintModel) TableName() string {
	return "complaints"
}

// ProviderModel is the persistence model for providers. Rows are managed by
// operational tooling; this subsystem reads them only.
type ProviderModel struct {
	ID                    string                  `gorm:"type:uuid;primaryKey"`
	Name                  string                  `gorm:"type:varchar(100);not null"`
	Type                  domain.NotificationType `gorm:"type:varchar(10);not null"`
	Priority              int                     `gorm:"not null;default:10"`
	Weight                int                     `gorm:"not null;default:0"`
	Active                bool                    `gorm:"not null;default:false"`
	SupportsInternational bool                    `gorm:"not null;default:false"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (ProviderModel) TableName() string {
	return "providers"
}

// CallbackJobModel is the persistence model for callback_jobs.
type CallbackJobModel struct {
	ID             string                   `gorm:"type:uuid;primaryKey"`
	ConfigID       string                   `gorm:"type:uuid;not null"`
	NotificationID string                   `gorm:"type:uuid;not null"`
	Purpose        domain.CallbackPurpose   `gorm:"type:varchar(20);not null"`
	PayloadSealed  []byte                   `gorm:"type:bytea;not null"`
	Status         domain.CallbackJobStatus `gorm:"type:varchar(20);not null"`
	AttemptCount   int                      `gorm:"not null;default:0"`
	MaxRetries     int                      `gorm:"not null;default:5"`
	NextRetryAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (CallbackJobModel) TableName() string {
	return "callback_jobs"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:                n.ID,
		ServiceID:         n.ServiceID,
		Type:              n.Type,
		ProviderID:        n.ProviderID,
		ProviderReference: n.ProviderReference,
		ClientReference:   n.ClientReference,
		Recipient:         n.Recipient,
		International:     n.International,
		Status:            n.Status,
		StatusReason:      n.StatusReason,
		CreatedAt:         n.CreatedAt,
		SentAt:            n.SentAt,
		CompletedAt:       n.CompletedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:                m.ID,
		ServiceID:         m.ServiceID,
		Type:              m.Type,
		ProviderID:        m.ProviderID,
		ProviderReference: m.ProviderReference,
		ClientReference:   m.ClientReference,
		Recipient:         m.Recipient,
		International:     m.International,
		Status:            m.Status,
		StatusReason:      m.StatusReason,
		CreatedAt:         m.CreatedAt,
		SentAt:            m.SentAt,
		CompletedAt:       m.CompletedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func callbackConfigModelToDomain(m *ServiceCallbackConfigModel) *domain.ServiceCallbackConfig {
	if m == nil {
		return nil
	}

	return &domain.ServiceCallbackConfig{
		ID:                m.ID,
		ServiceID:         m.ServiceID,
		Purpose:           m.Purpose,
		Channel:           m.Channel,
		URL:               m.URL,
		QueueName:         m.QueueName,
		BearerTokenSealed: m.BearerTokenSealed,
		Statuses:          statusesFromColumn(m.Statuses),
		Active:            m.Active,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func statusesFromColumn(value string) []domain.Status {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	statuses := make([]domain.Status, 0, len(parts))
	for _, p := range parts {
		statuses = append(statuses, domain.Status(strings.TrimSpace(p)))
	}
	return statuses
}

func complaintModelFromDomain(c *domain.Complaint) *ComplaintModel {
	if c == nil {
		return nil
	}

	return &ComplaintModel{
		ID:               c.ID,
		NotificationID:   c.NotificationID,
		ServiceID:        c.ServiceID,
		FeedbackID:       c.FeedbackID,
		ComplaintType:    c.ComplaintType,
		ComplaintSubtype: c.ComplaintSubtype,
		ComplaintDate:    c.ComplaintDate,
		CreatedAt:        c.CreatedAt,
	}
}

func complaintModelToDomain(m *ComplaintModel) *domain.Complaint {
	if m == nil {
		return nil
	}

	return &domain.Complaint{
		ID:               m.ID,
		NotificationID:   m.NotificationID,
		ServiceID:        m.ServiceID,
		FeedbackID:       m.FeedbackID,
		ComplaintType:    m.ComplaintType,
		ComplaintSubtype: m.ComplaintSubtype,
		ComplaintDate:    m.ComplaintDate,
		CreatedAt:        m.CreatedAt,
	}
}

func providerModelToDomain(m *ProviderModel) *domain.ProviderRecord {
	if m == nil {
		return nil
	}

	return &domain.ProviderRecord{
		ID:                    m.ID,
		Name:                  m.Name,
		Type:                  m.Type,
		Priority:              m.Priority,
		Weight:                m.Weight,
		Active:                m.Active,
		SupportsInternational: m.SupportsInternational,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func callbackJobModelFromDomain(j *domain.CallbackJob) *CallbackJobModel {
	if j == nil {
		return nil
	}

	return &CallbackJobModel{
		ID:             j.ID,
		ConfigID:       j.ConfigID,
		NotificationID: j.NotificationID,
		Purpose:        j.Purpose,
		PayloadSealed:  j.PayloadSealed,
		Status:         j.Status,
		AttemptCount:   j.AttemptCount,
		MaxRetries:     j.MaxRetries,
		NextRetryAt:    j.NextRetryAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func callbackJobModelToDomain(m *CallbackJobModel) *domain.CallbackJob {
	if m == nil {
		return nil
	}

	return &domain.CallbackJob{
		ID:             m.ID,
		ConfigID:       m.ConfigID,
		NotificationID: m.NotificationID,
		Purpose:        m.Purpose,
		PayloadSealed:  m.PayloadSealed,
		Status:         m.Status,
		AttemptCount:   m.AttemptCount,
		MaxRetries:     m.MaxRetries,
		NextRetryAt:    m.NextRetryAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
