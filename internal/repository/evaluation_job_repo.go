package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pedagolab/stepflow-api/internal/models"
)

// VisibilityUpdate carries the per-field visibility flags written when a
// teacher applies an evaluation.
type VisibilityUpdate struct {
	ShowFeedback        bool
	ShowCriteria        bool
	ShowKeywordsFound   bool
	ShowKeywordsMissing bool
	ShowSuggestions     bool
}

// EvaluationJobRepository exposes persistence helpers for evaluation jobs.
type EvaluationJobRepository interface {
	Create(ctx context.Context, job *models.EvaluationJob) error
	Update(ctx context.Context, job *models.EvaluationJob) error
	GetByID(ctx context.Context, id uint) (models.EvaluationJob, error)
	// GetLatest returns the most recently created job for the triple, ties
	// broken by highest id.
	GetLatest(ctx context.Context, activityID uint, step int, submissionID uint) (models.EvaluationJob, error)
	// FindActive returns a non-terminal job for the triple, if any.
	FindActive(ctx context.Context, activityID uint, step int, submissionID uint) (models.EvaluationJob, error)
	ListPending(ctx context.Context, limit int) ([]models.EvaluationJob, error)
	// ListEligible returns completed or applied jobs with non-empty feedback
	// for one (activity, step), oldest first.
	ListEligible(ctx context.Context, activityID uint, step int) ([]models.EvaluationJob, error)
	// TransitionStatus performs a compare-and-swap status update and reports
	// whether this caller won the transition.
	TransitionStatus(ctx context.Context, id uint, from, to string) (bool, error)
	// MarkApplied promotes a completed job to applied in one conditional
	// update so that concurrent apply calls serialize to a single winner.
	MarkApplied(ctx context.Context, id uint, appliedBy uint, appliedAt time.Time, flags VisibilityUpdate) (bool, error)
	Delete(ctx context.Context, id uint) (bool, error)
	DeleteForSubmission(ctx context.Context, activityID uint, step int, submissionID uint) (int64, error)
}

// NewEvaluationJobRepository constructs an evaluation job repository.
func NewEvaluationJobRepository(db *gorm.DB) EvaluationJobRepository {
	return &evaluationJobRepository{db: db}
}

type evaluationJobRepository struct {
	db *gorm.DB
}

func (r *evaluationJobRepository) Create(ctx context.Context, job *models.EvaluationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *evaluationJobRepository) Update(ctx context.Context, job *models.EvaluationJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *evaluationJobRepository) GetByID(ctx context.Context, id uint) (models.EvaluationJob, error) {
	var job models.EvaluationJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return models.EvaluationJob{}, err
	}
	return job, nil
}

func (r *evaluationJobRepository) GetLatest(ctx context.Context, activityID uint, step int, submissionID uint) (models.EvaluationJob, error) {
	var job models.EvaluationJob
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND step = ? AND submission_id = ?", activityID, step, submissionID).
		Order("id DESC").
		First(&job).Error
	if err != nil {
		return models.EvaluationJob{}, err
	}
	return job, nil
}

func (r *evaluationJobRepository) FindActive(ctx context.Context, activityID uint, step int, submissionID uint) (models.EvaluationJob, error) {
	var job models.EvaluationJob
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND step = ? AND submission_id = ?", activityID, step, submissionID).
		Where("status IN ?", []string{models.EvaluationStatusPending, models.EvaluationStatusProcessing}).
		Order("id DESC").
		First(&job).Error
	if err != nil {
		return models.EvaluationJob{}, err
	}
	return job, nil
}

func (r *evaluationJobRepository) ListPending(ctx context.Context, limit int) ([]models.EvaluationJob, error) {
	var jobs []models.EvaluationJob
	query := r.db.WithContext(ctx).
		Where("status = ?", models.EvaluationStatusPending).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *evaluationJobRepository) ListEligible(ctx context.Context, activityID uint, step int) ([]models.EvaluationJob, error) {
	var jobs []models.EvaluationJob
	err := r.db.WithContext(ctx).
		Where("activity_id = ? AND step = ?", activityID, step).
		Where("status IN ?", []string{models.EvaluationStatusCompleted, models.EvaluationStatusApplied}).
		Where("feedback <> ''").
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *evaluationJobRepository) TransitionStatus(ctx context.Context, id uint, from, to string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EvaluationJob{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *evaluationJobRepository) MarkApplied(ctx context.Context, id uint, appliedBy uint, appliedAt time.Time, flags VisibilityUpdate) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EvaluationJob{}).
		Where("id = ? AND status = ?", id, models.EvaluationStatusCompleted).
		Updates(map[string]interface{}{
			"status":                models.EvaluationStatusApplied,
			"applied_by":            appliedBy,
			"applied_at":            appliedAt,
			"show_feedback":         flags.ShowFeedback,
			"show_criteria":         flags.ShowCriteria,
			"show_keywords_found":   flags.ShowKeywordsFound,
			"show_keywords_missing": flags.ShowKeywordsMissing,
			"show_suggestions":      flags.ShowSuggestions,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *evaluationJobRepository) Delete(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.EvaluationJob{}, id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *evaluationJobRepository) DeleteForSubmission(ctx context.Context, activityID uint, step int, submissionID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("activity_id = ? AND step = ? AND submission_id = ?", activityID, step, submissionID).
		Delete(&models.EvaluationJob{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
