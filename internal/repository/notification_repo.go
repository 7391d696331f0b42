package repository

import (
	"context"
	"errors"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyOutcome reports what ApplyStatus did with a status update.
type ApplyOutcome int

const (
	// OutcomeApplied means the status and reason were persisted.
	OutcomeApplied ApplyOutcome = iota
	// OutcomeDuplicate means the record was already terminal (or the
	// transition arrived out of order) and nothing was modified.
	OutcomeDuplicate
)

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetByProviderReference(ctx context.Context, reference string) (*domain.Notification, error)
	SetProviderReference(ctx context.Context, id string, reference string) error
	// ApplyStatus performs the terminal-state check and the write under one
	// row lock so concurrent updates for the same notification serialize:
	// the first writer to reach a terminal status wins.
	ApplyStatus(ctx context.Context, id string, status domain.Status, reason domain.StatusReason, now time.Time) (ApplyOutcome, *domain.Notification, error)
	// ArchiveBefore moves terminal rows older than cutoff from the live
	// table into notification_history. Returns the number of rows moved.
	ArchiveBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	return r.findFirst(ctx, "id = ?", id)
}

func (r *GormNotificationRepo) GetByProviderReference(ctx context.Context, reference string) (*domain.Notification, error) {
	return r.findFirst(ctx, "provider_reference = ?", reference)
}

// findFirst checks the live table first and falls back to the archival table
// for records that have aged out.
func (r *GormNotificationRepo) findFirst(ctx context.Context, query string, arg any) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, query, arg).Error
	if err == nil {
		return notificationModelToDomain(&model), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Table(notificationHistoryTable).
		First(&model, query, arg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) SetProviderReference(ctx context.Context, id string, reference string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("provider_reference", reference)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) ApplyStatus(
	ctx context.Context,
	id string,
	status domain.Status,
	reason domain.StatusReason,
	now time.Time,
) (ApplyOutcome, *domain.Notification, error) {
	outcome := OutcomeDuplicate
	var updated *domain.Notification

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model NotificationModel
		table := model.TableName()

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			table = notificationHistoryTable
			err = tx.Table(table).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&model, "id = ?", id).Error
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		// Terminal statuses may only be reaffirmed; out-of-order arrivals
		// for open statuses are equally a no-op.
		if model.Status.IsTerminal() || !domain.CanTransition(model.Status, status) {
			outcome = OutcomeDuplicate
			updated = notificationModelToDomain(&model)
			return nil
		}

		updates := map[string]any{
			"status":        status,
			"status_reason": reason,
			"updated_at":    now,
		}
		if status == domain.StatusSending && model.SentAt == nil {
			updates["sent_at"] = now
		}
		if status.IsTerminal() && model.CompletedAt == nil {
			updates["completed_at"] = now
		}

		if err := tx.Table(table).
			Where("id = ?", model.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		model.Status = status
		model.StatusReason = reason
		model.UpdatedAt = now
		if sentAt, ok := updates["sent_at"]; ok {
			t := sentAt.(time.Time)
			model.SentAt = &t
		}
		if completedAt, ok := updates["completed_at"]; ok {
			t := completedAt.(time.Time)
			model.CompletedAt = &t
		}

		outcome = OutcomeApplied
		updated = notificationModelToDomain(&model)
		return nil
	})
	if err != nil {
		return OutcomeDuplicate, nil, err
	}

	return outcome, updated, nil
}

func (r *GormNotificationRepo) ArchiveBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit < 1 {
		limit = 100
	}

	moved := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var models []NotificationModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("completed_at IS NOT NULL AND updated_at < ?", cutoff).
			Limit(limit).
			Find(&models).Error
		if err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}

		if err := tx.Table(notificationHistoryTable).Create(&models).Error; err != nil {
			return err
		}

		ids := make([]string, 0, len(models))
		for i := range models {
			ids = append(ids, models[i].ID)
		}
		if err := tx.Delete(&NotificationModel{}, "id IN ?", ids).Error; err != nil {
			return err
		}

		moved = len(models)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return moved, nil
}
