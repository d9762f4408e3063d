package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/pedagolab/stepflow-api/internal/models"
)

// CorrectionModelRepository reads the teacher-authored grading references.
type CorrectionModelRepository interface {
	GetForStep(ctx context.Context, activityID uint, step int) (models.CorrectionModel, error)
}

// NewCorrectionModelRepository constructs a correction model repository.
func NewCorrectionModelRepository(db *gorm.DB) CorrectionModelRepository {
	return &correctionModelRepository{db: db}
}

type correctionModelRepository struct {
	db *gorm.DB
}

func (r *correctionModelRepository) GetForStep(ctx context.Context, activityID uint, step int) (models.CorrectionModel, error) {
	var model models.CorrectionModel
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND step = ?", activityID, step).
		First(&model).Error
	if err != nil {
		return models.CorrectionModel{}, err
	}
	return model, nil
}
