package repository

import (
	"context"
	"errors"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"gorm.io/gorm"
)

// ProviderRepository reads provider records. Rows are managed elsewhere.
type ProviderRepository interface {
	GetByID(ctx context.Context, id string) (*domain.ProviderRecord, error)
	// ListActive returns active providers for a notification type ordered
	// by ascending priority. Ordering among equal priorities is whatever
	// the database returns.
	ListActive(ctx context.Context, t domain.NotificationType) ([]domain.ProviderRecord, error)
}

type GormProviderRepo struct {
	db *gorm.DB
}

func NewGormProviderRepo(db *gorm.DB) *GormProviderRepo {
	return &GormProviderRepo{db: db}
}

func (r *GormProviderRepo) GetByID(ctx context.Context, id string) (*domain.ProviderRecord, error) {
	var model ProviderModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return providerModelToDomain(&model), nil
}

func (r *GormProviderRepo) ListActive(ctx context.Context, t domain.NotificationType) ([]domain.ProviderRecord, error) {
	var models []ProviderModel
	err := r.db.WithContext(ctx).
		Where("type = ? AND active", t).
		Order("priority ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	providers := make([]domain.ProviderRecord, 0, len(models))
	for i := range models {
		providers = append(providers, *providerModelToDomain(&models[i]))
	}

	return providers, nil
}
