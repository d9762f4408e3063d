package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pedagolab/stepflow-api/internal/models"
)

// AggregateSummaryRepository persists the single cached synthesis row per
// (activity, step).
type AggregateSummaryRepository interface {
	Get(ctx context.Context, activityID uint, step int) (models.AggregateSummary, error)
	// Upsert overwrites the row for (activity, step) in place.
	Upsert(ctx context.Context, summary *models.AggregateSummary) error
}

// NewAggregateSummaryRepository constructs an aggregate summary repository.
func NewAggregateSummaryRepository(db *gorm.DB) AggregateSummaryRepository {
	return &aggregateSummaryRepository{db: db}
}

type aggregateSummaryRepository struct {
	db *gorm.DB
}

func (r *aggregateSummaryRepository) Get(ctx context.Context, activityID uint, step int) (models.AggregateSummary, error) {
	var summary models.AggregateSummary
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND step = ?", activityID, step).
		First(&summary).Error
	if err != nil {
		return models.AggregateSummary{}, err
	}
	return summary, nil
}

func (r *aggregateSummaryRepository) Upsert(ctx context.Context, summary *models.AggregateSummary) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "activity_id"}, {Name: "step"}},
			UpdateAll: true,
		}).
		Create(summary).Error
}
