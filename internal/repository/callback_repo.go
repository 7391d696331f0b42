package repository

import (
	"context"
	"errors"
	"time"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"gorm.io/gorm"
)

// CallbackConfigRepository reads subscriber callback registrations. Config
// rows are owned by service-management tooling; this subsystem never writes
// them.
type CallbackConfigRepository interface {
	GetActive(ctx context.Context, serviceID string, purpose domain.CallbackPurpose) (*domain.ServiceCallbackConfig, error)
	GetByID(ctx context.Context, id string) (*domain.ServiceCallbackConfig, error)
}

type GormCallbackConfigRepo struct {
	db *gorm.DB
}

func NewGormCallbackConfigRepo(db *gorm.DB) *GormCallbackConfigRepo {
	return &GormCallbackConfigRepo{db: db}
}

func (r *GormCallbackConfigRepo) GetActive(
	ctx context.Context,
	serviceID string,
	purpose domain.CallbackPurpose,
) (*domain.ServiceCallbackConfig, error) {
	var model ServiceCallbackConfigModel
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND purpose = ? AND active", serviceID, purpose).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return callbackConfigModelToDomain(&model), nil
}

func (r *GormCallbackConfigRepo) GetByID(ctx context.Context, id string) (*domain.ServiceCallbackConfig, error) {
	var model ServiceCallbackConfigModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return callbackConfigModelToDomain(&model), nil
}

// CallbackJobRepository persists dispatch units so webhook retries survive
// process restarts.
type CallbackJobRepository interface {
	Create(ctx context.Context, job *domain.CallbackJob) error
	GetByID(ctx context.Context, id string) (*domain.CallbackJob, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
	MarkExhausted(ctx context.Context, id string) error
	ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.CallbackJob, error)
	ClearNextRetryAt(ctx context.Context, id string) error
}

type GormCallbackJobRepo struct {
	db *gorm.DB
}

func NewGormCallbackJobRepo(db *gorm.DB) *GormCallbackJobRepo {
	return &GormCallbackJobRepo{db: db}
}

func (r *GormCallbackJobRepo) Create(ctx context.Context, job *domain.CallbackJob) error {
	model := callbackJobModelFromDomain(job)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if job != nil {
		*job = *callbackJobModelToDomain(model)
	}
	return nil
}

func (r *GormCallbackJobRepo) GetByID(ctx context.Context, id string) (*domain.CallbackJob, error) {
	var model CallbackJobModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return callbackJobModelToDomain(&model), nil
}

func (r *GormCallbackJobRepo) MarkDelivered(ctx context.Context, id string) error {
	return r.markFinal(ctx, id, domain.JobDelivered)
}

func (r *GormCallbackJobRepo) MarkFailed(ctx context.Context, id string) error {
	return r.markFinal(ctx, id, domain.JobFailed)
}

func (r *GormCallbackJobRepo) MarkExhausted(ctx context.Context, id string) error {
	return r.markFinal(ctx, id, domain.JobExhausted)
}

func (r *GormCallbackJobRepo) markFinal(ctx context.Context, id string, status domain.CallbackJobStatus) error {
	result := r.db.WithContext(ctx).
		Model(&CallbackJobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        status,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormCallbackJobRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&CallbackJobModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.JobPending,
			"next_retry_at": nextRetryAt,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormCallbackJobRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.CallbackJob, error) {
	var models []CallbackJobModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.JobPending, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	jobs := make([]domain.CallbackJob, 0, len(models))
	for i := range models {
		jobs = append(jobs, *callbackJobModelToDomain(&models[i]))
	}

	return jobs, nil
}

func (r *GormCallbackJobRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&CallbackJobModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}
