package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pedagolab/stepflow-api/internal/models"
)

// StepSubmissionRepository exposes persistence helpers for step submissions.
// The submission store itself is owned by the host platform; the evaluation
// core reads identifying fields and writes grades back.
type StepSubmissionRepository interface {
	Create(ctx context.Context, submission *models.StepSubmission) error
	GetByID(ctx context.Context, id uint) (models.StepSubmission, error)
	ListSubmitted(ctx context.Context, activityID uint, step int) ([]models.StepSubmission, error)
	ListOverdueDrafts(ctx context.Context, now time.Time) ([]models.StepSubmission, error)
	MarkSubmitted(ctx context.Context, id uint) error
	// WriteGrade transcribes an applied evaluation onto the submission row.
	WriteGrade(ctx context.Context, id uint, grade float64, feedback string, gradedBy uint, gradedAt time.Time) error
}

// NewStepSubmissionRepository constructs a step submission repository.
func NewStepSubmissionRepository(db *gorm.DB) StepSubmissionRepository {
	return &stepSubmissionRepository{db: db}
}

type stepSubmissionRepository struct {
	db *gorm.DB
}

func (r *stepSubmissionRepository) Create(ctx context.Context, submission *models.StepSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *stepSubmissionRepository) GetByID(ctx context.Context, id uint) (models.StepSubmission, error) {
	var submission models.StepSubmission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.StepSubmission{}, err
	}
	return submission, nil
}

func (r *stepSubmissionRepository) ListSubmitted(ctx context.Context, activityID uint, step int) ([]models.StepSubmission, error) {
	var submissions []models.StepSubmission
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND step = ? AND status = ?", activityID, step, models.StepSubmissionStatusSubmitted).
		Order("id ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *stepSubmissionRepository) ListOverdueDrafts(ctx context.Context, now time.Time) ([]models.StepSubmission, error) {
	var submissions []models.StepSubmission
	err := r.db.WithContext(ctx).
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", models.StepSubmissionStatusDraft, now).
		Order("id ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *stepSubmissionRepository) MarkSubmitted(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.StepSubmission{}).
		Where("id = ?", id).
		Update("status", models.StepSubmissionStatusSubmitted).Error
}

func (r *stepSubmissionRepository) WriteGrade(ctx context.Context, id uint, grade float64, feedback string, gradedBy uint, gradedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.StepSubmission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"grade":     grade,
			"feedback":  feedback,
			"graded_by": gradedBy,
			"graded_at": gradedAt,
		}).Error
}
