package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pedagolab/stepflow-api/internal/dto"
	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/internal/repository"
)

// SubmissionService hosts the deadline sweep that promotes overdue drafts to
// submitted and best-effort queues their AI evaluation.
type SubmissionService interface {
	SubmitExpiredDrafts(ctx context.Context) (int, error)
}

type submissionService struct {
	submissions repository.StepSubmissionRepository
	evaluations EvaluationService
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs the deadline sweep service.
func NewSubmissionService(submissions repository.StepSubmissionRepository, evaluations EvaluationService, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		submissions: submissions,
		evaluations: evaluations,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

// SubmitExpiredDrafts auto-submits every draft past its deadline. Queueing
// the follow-up evaluation is deliberately best effort: the auto-submit must
// never fail because the AI pipeline could not take the job, so queue errors
// are logged and swallowed here.
func (s *submissionService) SubmitExpiredDrafts(ctx context.Context) (int, error) {
	drafts, err := s.submissions.ListOverdueDrafts(ctx, s.now())
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, draft := range drafts {
		if err := s.submissions.MarkSubmitted(ctx, draft.ID); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", draft.ID).Msg("failed to auto-submit draft")
			continue
		}
		submitted++

		if !models.StepEvaluable(draft.Step) {
			continue
		}

		if _, err := s.evaluations.Queue(ctx, dto.QueueEvaluationRequest{
			ActivityID:   draft.ActivityID,
			Step:         draft.Step,
			SubmissionID: draft.ID,
			GroupID:      draft.GroupID,
			UserID:       draft.UserID,
		}); err != nil {
			s.logger.Warn().Err(err).
				Uint("submission_id", draft.ID).
				Msg("auto-submit kept, evaluation queueing skipped")
		}
	}

	if submitted > 0 {
		s.logger.Info().Int("submitted", submitted).Msg("deadline sweep completed")
	}
	return submitted, nil
}
