package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/pedagolab/stepflow-api/internal/dto"
	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/internal/repository"
)

// ErrInvalidJobState indicates an operation against a job in the wrong
// lifecycle state, e.g. applying a pending or already-applied job.
var ErrInvalidJobState = errors.New("evaluation job is not in an applicable state")

// ErrJobNotGraded indicates a completed job whose parsed grade is absent and
// therefore needs human review before anything can reach the gradebook.
var ErrJobNotGraded = errors.New("evaluation carries no grade to apply")

// GradeService transcribes completed evaluations into submission grades under
// teacher-chosen visibility flags.
type GradeService interface {
	ApplyAIGrade(ctx context.Context, jobID uint, appliedBy uint, flags dto.VisibilityFlags) error
}

type gradeService struct {
	jobs        repository.EvaluationJobRepository
	submissions repository.StepSubmissionRepository
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradeService constructs the grade application service.
func NewGradeService(jobs repository.EvaluationJobRepository, submissions repository.StepSubmissionRepository, logger zerolog.Logger) GradeService {
	return &gradeService{
		jobs:        jobs,
		submissions: submissions,
		logger:      logger.With().Str("component", "grade_service").Logger(),
		now:         time.Now,
	}
}

// ApplyAIGrade writes a completed job's grade and feedback onto its
// submission and promotes the job to applied. The promotion is a conditional
// update guarded by the completed status, so concurrent calls serialize to a
// single winner and re-application is rejected.
func (s *gradeService) ApplyAIGrade(ctx context.Context, jobID uint, appliedBy uint, flags dto.VisibilityFlags) error {
	tracer := otel.Tracer("github.com/pedagolab/stepflow-api/internal/service/grade")
	ctx, span := tracer.Start(ctx, "grade.apply")
	span.SetAttributes(
		attribute.Int64("grade.job_id", int64(jobID)),
		attribute.Int64("grade.applied_by", int64(appliedBy)),
	)
	defer span.End()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "job_not_found")
			return ErrJobNotFound
		}
		span.RecordError(err)
		return err
	}

	if job.Status != models.EvaluationStatusCompleted {
		span.SetStatus(codes.Error, "invalid_state")
		return ErrInvalidJobState
	}
	if job.Grade == nil {
		span.SetStatus(codes.Error, "no_grade")
		return ErrJobNotGraded
	}

	appliedAt := s.now()

	// The submission write happens before the status swap: if two callers
	// race, both write the same values from the same completed job, and the
	// conditional update below picks exactly one winner.
	if err := s.submissions.WriteGrade(ctx, job.SubmissionID, *job.Grade, job.Feedback, appliedBy, appliedAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_write_failed")
		return err
	}

	resolved := flags.Resolve()
	applied, err := s.jobs.MarkApplied(ctx, job.ID, appliedBy, appliedAt, repository.VisibilityUpdate{
		ShowFeedback:        resolved.ShowFeedback,
		ShowCriteria:        resolved.ShowCriteria,
		ShowKeywordsFound:   resolved.ShowKeywordsFound,
		ShowKeywordsMissing: resolved.ShowKeywordsMissing,
		ShowSuggestions:     resolved.ShowSuggestions,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !applied {
		span.SetStatus(codes.Error, "apply_race_lost")
		return ErrInvalidJobState
	}

	span.SetAttributes(attribute.Float64("grade.value", *job.Grade))
	s.logger.Info().
		Uint("job_id", job.ID).
		Uint("submission_id", job.SubmissionID).
		Uint("applied_by", appliedBy).
		Float64("grade", *job.Grade).
		Msg("ai grade applied")
	return nil
}
