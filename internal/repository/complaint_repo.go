package repository

import (
	"context"

	"github.com/notify-platform/outcome-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ComplaintRepository owns the complaints table. CreateOnce is idempotent
// per (notification, feedback id) so redelivered complaint events cannot
// fan out twice.
type ComplaintRepository interface {
	CreateOnce(ctx context.Context, c *domain.Complaint) (bool, error)
}

type GormComplaintRepo struct {
	db *gorm.DB
}

func NewGormComplaintRepo(db *gorm.DB) *GormComplaintRepo {
	return &GormComplaintRepo{db: db}
}

func (r *GormComplaintRepo) CreateOnce(ctx context.Context, c *domain.Complaint) (bool, error) {
	model := complaintModelFromDomain(c)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "notification_id"}, {Name: "feedback_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}

	if result.RowsAffected == 0 {
		return false, nil
	}

	if c != nil {
		*c = *complaintModelToDomain(model)
	}
	return true, nil
}
