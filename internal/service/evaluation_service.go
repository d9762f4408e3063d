package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pedagolab/stepflow-api/internal/dto"
	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/internal/repository"
	"github.com/pedagolab/stepflow-api/pkg/ai"
)

// ErrInvalidStep indicates the step does not support AI evaluation.
var ErrInvalidStep = errors.New("step does not support ai evaluation")

// ErrAIDisabled indicates the activity has AI evaluation switched off.
var ErrAIDisabled = errors.New("ai evaluation is disabled for this activity")

// ErrActivityNotFound indicates the activity cannot be located.
var ErrActivityNotFound = errors.New("activity not found")

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrJobNotFound indicates the evaluation job cannot be located.
var ErrJobNotFound = errors.New("evaluation job not found")

// EvaluationService owns the evaluation job store and its state machine:
// pending -> processing -> completed|failed, with applied reachable from
// completed through the grading service.
type EvaluationService interface {
	Queue(ctx context.Context, req dto.QueueEvaluationRequest) (uint, error)
	Process(ctx context.Context, jobID uint) error
	Get(ctx context.Context, activityID uint, step int, submissionID uint) (models.EvaluationJob, error)
	GetByID(ctx context.Context, jobID uint) (models.EvaluationJob, error)
	Delete(ctx context.Context, jobID uint) error
	DeleteForSubmission(ctx context.Context, activityID uint, step int, submissionID uint) (int64, error)
	BulkReevaluate(ctx context.Context, activityID uint, step int) (dto.BulkReevaluateResult, error)
	TestProvider(ctx context.Context, name, apiKey string) error
}

// EvaluationConfig carries the provider call knobs.
type EvaluationConfig struct {
	MaxTokens      int
	PromptBudget   int
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

type evaluationService struct {
	jobs        repository.EvaluationJobRepository
	submissions repository.StepSubmissionRepository
	corrections repository.CorrectionModelRepository
	activities  repository.ActivityRepository
	resolver    ProviderResolver
	events      EventPublisher
	validator   *validator.Validate
	logger      zerolog.Logger
	cfg         EvaluationConfig
}

// NewEvaluationService constructs the evaluation service. events may be nil.
func NewEvaluationService(
	jobs repository.EvaluationJobRepository,
	submissions repository.StepSubmissionRepository,
	corrections repository.CorrectionModelRepository,
	activities repository.ActivityRepository,
	resolver ProviderResolver,
	events EventPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
	cfg EvaluationConfig,
) EvaluationService {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.PromptBudget <= 0 {
		cfg.PromptBudget = 8000
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	return &evaluationService{
		jobs:        jobs,
		submissions: submissions,
		corrections: corrections,
		activities:  activities,
		resolver:    resolver,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		cfg:         cfg,
	}
}

func (s *evaluationService) Queue(ctx context.Context, req dto.QueueEvaluationRequest) (uint, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, err
	}
	if !models.StepEvaluable(req.Step) {
		return 0, ErrInvalidStep
	}

	activity, err := s.activities.GetByID(ctx, req.ActivityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrActivityNotFound
		}
		return 0, err
	}
	if !activity.AIEnabled {
		return 0, ErrAIDisabled
	}

	if _, err := s.submissions.GetByID(ctx, req.SubmissionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrSubmissionNotFound
		}
		return 0, err
	}

	// An active job for the triple is reused rather than duplicated; failed
	// jobs stay terminal and an explicit re-evaluation creates a fresh row.
	if active, err := s.jobs.FindActive(ctx, req.ActivityID, req.Step, req.SubmissionID); err == nil {
		return active.ID, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	job := newPendingJob(req.ActivityID, req.Step, req.SubmissionID, req.GroupID, req.UserID)
	if err := s.jobs.Create(ctx, &job); err != nil {
		return 0, err
	}

	s.logger.Info().
		Uint("job_id", job.ID).
		Uint("activity_id", req.ActivityID).
		Int("step", req.Step).
		Uint("submission_id", req.SubmissionID).
		Msg("evaluation queued")
	return job.ID, nil
}

// Process is the idempotent worker entry point. Terminal jobs return nil
// without touching the provider; a failed evaluation is persisted as such and
// the error is re-raised so the hosting scheduler can record the failure.
func (s *evaluationService) Process(ctx context.Context, jobID uint) error {
	logger := s.logger.With().Uint("job_id", jobID).Logger()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrJobNotFound
		}
		return err
	}

	if job.IsTerminal() {
		logger.Debug().Str("status", job.Status).Msg("job already terminal, skipping")
		return nil
	}

	claimed, err := s.jobs.TransitionStatus(ctx, job.ID, models.EvaluationStatusPending, models.EvaluationStatusProcessing)
	if err != nil {
		return err
	}
	if !claimed {
		// Lost the claim to a concurrent worker, or the job finished in
		// between reads; either way there is nothing left to do here.
		logger.Debug().Msg("job claim lost, skipping")
		return nil
	}
	job.Status = models.EvaluationStatusProcessing

	if err := s.evaluate(ctx, &job); err != nil {
		job.Status = models.EvaluationStatusFailed
		job.ErrorMessage = err.Error()
		if updateErr := s.jobs.Update(ctx, &job); updateErr != nil {
			logger.Error().Err(updateErr).Msg("failed to persist failed evaluation")
		}
		s.publish(SubjectEvaluationFailed, job)
		logger.Warn().Err(err).Msg("evaluation failed")
		return fmt.Errorf("process evaluation %d: %w", jobID, err)
	}

	s.publish(SubjectEvaluationCompleted, job)
	logger.Info().Msg("evaluation completed")
	return nil
}

func (s *evaluationService) evaluate(ctx context.Context, job *models.EvaluationJob) error {
	submission, err := s.submissions.GetByID(ctx, job.SubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	activity, err := s.activities.GetByID(ctx, job.ActivityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrActivityNotFound
		}
		return err
	}

	// The correction model is optional input; the prompt builder degrades
	// gracefully without a reference answer.
	correction, err := s.corrections.GetForStep(ctx, job.ActivityID, job.Step)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	provider, model, err := s.resolver.Resolve(activity)
	if err != nil {
		return err
	}
	job.Provider = provider.Name()
	job.Model = model

	system, user := ai.BuildEvaluationPrompts(ai.PromptInput{
		StepName:        models.StepName(job.Step),
		SubmissionText:  submission.Content,
		ReferenceAnswer: correction.ReferenceAnswer,
		Instructions:    correction.Instructions,
	}, s.cfg.PromptBudget)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	resp, err := provider.Chat(callCtx, ai.ChatRequest{
		System:    system,
		User:      user,
		Model:     model,
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return err
	}

	// Raw response and token counts survive even when parsing fails below,
	// so the failed row keeps the material for manual inspection.
	job.RawResponse = resp.Content
	job.PromptTokens = resp.PromptTokens
	job.CompletionTokens = resp.CompletionTokens

	result, err := ai.ParseEvaluation(resp.Content)
	if err != nil {
		return err
	}
	if err := job.SetResult(result); err != nil {
		return err
	}

	job.Status = models.EvaluationStatusCompleted
	return s.jobs.Update(ctx, job)
}

func (s *evaluationService) Get(ctx context.Context, activityID uint, step int, submissionID uint) (models.EvaluationJob, error) {
	job, err := s.jobs.GetLatest(ctx, activityID, step, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.EvaluationJob{}, ErrJobNotFound
		}
		return models.EvaluationJob{}, err
	}
	return job, nil
}

func (s *evaluationService) GetByID(ctx context.Context, jobID uint) (models.EvaluationJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.EvaluationJob{}, ErrJobNotFound
		}
		return models.EvaluationJob{}, err
	}
	return job, nil
}

func (s *evaluationService) Delete(ctx context.Context, jobID uint) error {
	deleted, err := s.jobs.Delete(ctx, jobID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrJobNotFound
	}
	return nil
}

func (s *evaluationService) DeleteForSubmission(ctx context.Context, activityID uint, step int, submissionID uint) (int64, error) {
	return s.jobs.DeleteForSubmission(ctx, activityID, step, submissionID)
}

// BulkReevaluate deletes and re-queues evaluations for every submitted
// submission of a step. Per-submission failures land in the result's Errors
// list; one bad submission never blocks the rest of the batch.
func (s *evaluationService) BulkReevaluate(ctx context.Context, activityID uint, step int) (dto.BulkReevaluateResult, error) {
	result := dto.BulkReevaluateResult{Errors: []dto.BulkError{}}

	if !models.StepEvaluable(step) {
		return result, ErrInvalidStep
	}

	activity, err := s.activities.GetByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return result, ErrActivityNotFound
		}
		return result, err
	}
	if !activity.AIEnabled {
		return result, ErrAIDisabled
	}

	submissions, err := s.submissions.ListSubmitted(ctx, activityID, step)
	if err != nil {
		return result, err
	}

	for _, submission := range submissions {
		deleted, err := s.jobs.DeleteForSubmission(ctx, activityID, step, submission.ID)
		if err != nil {
			result.Errors = append(result.Errors, dto.BulkError{SubmissionID: submission.ID, Message: err.Error()})
			continue
		}
		result.Deleted += int(deleted)

		job := newPendingJob(activityID, step, submission.ID, submission.GroupID, submission.UserID)
		if err := s.jobs.Create(ctx, &job); err != nil {
			result.Errors = append(result.Errors, dto.BulkError{SubmissionID: submission.ID, Message: err.Error()})
			continue
		}
		result.Queued++
	}

	s.logger.Info().
		Uint("activity_id", activityID).
		Int("step", step).
		Int("deleted", result.Deleted).
		Int("queued", result.Queued).
		Int("errors", len(result.Errors)).
		Msg("bulk re-evaluation finished")
	return result, nil
}

// TestProvider sends a minimal prompt through the named adapter to verify the
// endpoint and key. No local state is touched.
func (s *evaluationService) TestProvider(ctx context.Context, name, apiKey string) error {
	provider, err := ai.New(name, apiKey, ai.Options{Timeout: s.cfg.ConnectTimeout})
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	return ai.TestConnection(callCtx, provider)
}

func (s *evaluationService) publish(subject string, job models.EvaluationJob) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(subject, job); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Uint("job_id", job.ID).Msg("failed to publish evaluation event")
	}
}

func newPendingJob(activityID uint, step int, submissionID, groupID, userID uint) models.EvaluationJob {
	return models.EvaluationJob{
		ActivityID:          activityID,
		Step:                step,
		SubmissionID:        submissionID,
		GroupID:             groupID,
		UserID:              userID,
		Status:              models.EvaluationStatusPending,
		ShowFeedback:        true,
		ShowCriteria:        true,
		ShowKeywordsFound:   true,
		ShowKeywordsMissing: true,
		ShowSuggestions:     true,
	}
}

// StatusDisplay maps a job status onto its display descriptor. Pure derived
// data, no side effects.
func StatusDisplay(job models.EvaluationJob) dto.StatusInfoResponse {
	switch job.Status {
	case models.EvaluationStatusPending:
		return dto.StatusInfoResponse{Label: "Waiting for evaluation"}
	case models.EvaluationStatusProcessing:
		return dto.StatusInfoResponse{Label: "Evaluation in progress"}
	case models.EvaluationStatusCompleted:
		return dto.StatusInfoResponse{Label: "Evaluated", Terminal: true}
	case models.EvaluationStatusFailed:
		return dto.StatusInfoResponse{Label: "Evaluation failed", Terminal: true, IsError: true}
	case models.EvaluationStatusApplied:
		return dto.StatusInfoResponse{Label: "Grade applied", Terminal: true}
	default:
		return dto.StatusInfoResponse{Label: "Unknown", IsError: true}
	}
}
