package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pedagolab/stepflow-api/internal/dto"
	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/internal/repository"
	"github.com/pedagolab/stepflow-api/pkg/ai"
)

// summaryMinEvaluations is the smallest batch worth a synthesis call.
const summaryMinEvaluations = 1

// SummaryService produces and caches the per-step synthesis across all
// graded submissions.
type SummaryService interface {
	Get(ctx context.Context, activityID uint, step int) (dto.SummaryStatusResponse, error)
	Generate(ctx context.Context, activityID uint, step int, force bool) (dto.GenerateSummaryResult, error)
}

// SummaryConfig carries the staleness and provider call knobs.
type SummaryConfig struct {
	StaleAfter time.Duration
	CacheTTL   time.Duration
	MaxTokens  int
	Timeout    time.Duration
}

type summaryService struct {
	summaries  repository.AggregateSummaryRepository
	jobs       repository.EvaluationJobRepository
	activities repository.ActivityRepository
	resolver   ProviderResolver
	cache      *redis.Client
	logger     zerolog.Logger
	cfg        SummaryConfig
	now        func() time.Time
}

// NewSummaryService constructs the summary service. cache may be nil.
func NewSummaryService(
	summaries repository.AggregateSummaryRepository,
	jobs repository.EvaluationJobRepository,
	activities repository.ActivityRepository,
	resolver ProviderResolver,
	cache *redis.Client,
	logger zerolog.Logger,
	cfg SummaryConfig,
) SummaryService {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Hour
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &summaryService{
		summaries:  summaries,
		jobs:       jobs,
		activities: activities,
		resolver:   resolver,
		cache:      cache,
		logger:     logger.With().Str("component", "summary_service").Logger(),
		cfg:        cfg,
		now:        time.Now,
	}
}

func summaryCacheKey(activityID uint, step int) string {
	return fmt.Sprintf("summary:activity:%d:step:%d", activityID, step)
}

// Get returns the cached synthesis, or a "no summary yet" descriptor carrying
// the eligible evaluation count against the minimum required.
func (s *summaryService) Get(ctx context.Context, activityID uint, step int) (dto.SummaryStatusResponse, error) {
	if !models.StepEvaluable(step) {
		return dto.SummaryStatusResponse{}, ErrInvalidStep
	}

	cacheKey := summaryCacheKey(activityID, step)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.SummaryStatusResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("activity_id", activityID).Int("step", step).Msg("summary cache hit")
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read summary cache")
		}
	}

	summary, err := s.summaries.Get(ctx, activityID, step)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SummaryStatusResponse{}, err
		}
		eligible, listErr := s.jobs.ListEligible(ctx, activityID, step)
		if listErr != nil {
			return dto.SummaryStatusResponse{}, listErr
		}
		return dto.SummaryStatusResponse{
			EligibleCount: len(eligible),
			Required:      summaryMinEvaluations,
		}, nil
	}

	view := dto.NewSummaryResponse(summary)
	response := dto.SummaryStatusResponse{
		Available:     true,
		EligibleCount: summary.EvaluationCount,
		Required:      summaryMinEvaluations,
		Summary:       &view,
	}
	s.storeCache(ctx, cacheKey, response)
	return response, nil
}

// Generate produces or refreshes the synthesis. A row younger than the
// staleness window is returned as-is unless force is set; a batch below the
// minimum never spends a provider call.
func (s *summaryService) Generate(ctx context.Context, activityID uint, step int, force bool) (dto.GenerateSummaryResult, error) {
	if !models.StepEvaluable(step) {
		return dto.GenerateSummaryResult{}, ErrInvalidStep
	}

	activity, err := s.activities.GetByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GenerateSummaryResult{}, ErrActivityNotFound
		}
		return dto.GenerateSummaryResult{}, err
	}
	if !activity.AIEnabled {
		return dto.GenerateSummaryResult{}, ErrAIDisabled
	}

	if existing, err := s.summaries.Get(ctx, activityID, step); err == nil {
		if !force && existing.IsFresh(s.now(), s.cfg.StaleAfter) {
			view := dto.NewSummaryResponse(existing)
			return dto.GenerateSummaryResult{
				CacheHit:      true,
				EligibleCount: existing.EvaluationCount,
				Required:      summaryMinEvaluations,
				Summary:       &view,
			}, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.GenerateSummaryResult{}, err
	}

	eligible, err := s.jobs.ListEligible(ctx, activityID, step)
	if err != nil {
		return dto.GenerateSummaryResult{}, err
	}
	if len(eligible) < summaryMinEvaluations {
		return dto.GenerateSummaryResult{
			NotEnoughData: true,
			EligibleCount: len(eligible),
			Required:      summaryMinEvaluations,
		}, nil
	}

	evidence := make([]ai.SummaryEvidence, 0, len(eligible))
	for _, job := range eligible {
		result, resultErr := job.Result()
		if resultErr != nil {
			s.logger.Warn().Err(resultErr).Uint("job_id", job.ID).Msg("skipping unreadable evaluation result")
			continue
		}
		evidence = append(evidence, ai.SummaryEvidence{
			Grade:           result.Grade,
			Feedback:        result.Feedback,
			KeywordsMissing: result.KeywordsMissing,
			Suggestions:     result.Suggestions,
		})
	}
	// Unreadable rows may have shrunk the batch below the minimum; an empty
	// batch never spends a provider call.
	if len(evidence) < summaryMinEvaluations {
		return dto.GenerateSummaryResult{
			NotEnoughData: true,
			EligibleCount: len(evidence),
			Required:      summaryMinEvaluations,
		}, nil
	}

	provider, model, err := s.resolver.Resolve(activity)
	if err != nil {
		return dto.GenerateSummaryResult{}, err
	}

	system, user := ai.BuildSummaryPrompt(evidence, models.StepName(step))

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := provider.Chat(callCtx, ai.ChatRequest{
		System:    system,
		User:      user,
		Model:     model,
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return dto.GenerateSummaryResult{}, err
	}

	parsed, err := ai.ParseSummary(resp.Content)
	if err != nil {
		return dto.GenerateSummaryResult{}, err
	}

	row, err := buildSummaryRow(activityID, step, parsed, len(evidence), provider.Name(), model, resp)
	if err != nil {
		return dto.GenerateSummaryResult{}, err
	}
	row.GeneratedAt = s.now()

	if err := s.summaries.Upsert(ctx, &row); err != nil {
		return dto.GenerateSummaryResult{}, err
	}
	s.dropCache(ctx, summaryCacheKey(activityID, step))

	view := dto.NewSummaryResponse(row)
	s.logger.Info().
		Uint("activity_id", activityID).
		Int("step", step).
		Int("evaluations", len(evidence)).
		Msg("summary generated")
	return dto.GenerateSummaryResult{
		EligibleCount: len(evidence),
		Required:      summaryMinEvaluations,
		Summary:       &view,
	}, nil
}

func buildSummaryRow(activityID uint, step int, parsed ai.SummaryResult, count int, provider, model string, resp ai.ChatResponse) (models.AggregateSummary, error) {
	difficulties, err := json.Marshal(parsed.Difficulties)
	if err != nil {
		return models.AggregateSummary{}, err
	}
	strengths, err := json.Marshal(parsed.Strengths)
	if err != nil {
		return models.AggregateSummary{}, err
	}
	recommendations, err := json.Marshal(parsed.Recommendations)
	if err != nil {
		return models.AggregateSummary{}, err
	}

	return models.AggregateSummary{
		ActivityID:         activityID,
		Step:               step,
		Difficulties:       datatypes.JSON(difficulties),
		Strengths:          datatypes.JSON(strengths),
		Recommendations:    datatypes.JSON(recommendations),
		GeneralObservation: parsed.GeneralObservation,
		EvaluationCount:    count,
		Provider:           provider,
		Model:              model,
		PromptTokens:       resp.PromptTokens,
		CompletionTokens:   resp.CompletionTokens,
	}, nil
}

func (s *summaryService) storeCache(ctx context.Context, key string, response dto.SummaryStatusResponse) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store summary cache")
	}
}

func (s *summaryService) dropCache(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate summary cache")
	}
}
