package dto

import (
	"encoding/json"
	"time"

	"github.com/pedagolab/stepflow-api/internal/models"
)

// GenerateSummaryRequest asks for the step synthesis to be (re)generated.
type GenerateSummaryRequest struct {
	ActivityID uint `json:"activity_id" validate:"required,gt=0"`
	Step       int  `json:"step" validate:"required"`
	Force      bool `json:"force"`
}

// SummaryResponse is the API view of one aggregate summary row.
type SummaryResponse struct {
	ActivityID         uint      `json:"activity_id"`
	Step               int       `json:"step"`
	Difficulties       []string  `json:"difficulties"`
	Strengths          []string  `json:"strengths"`
	Recommendations    []string  `json:"recommendations"`
	GeneralObservation string    `json:"general_observation"`
	EvaluationCount    int       `json:"evaluation_count"`
	Provider           string    `json:"provider"`
	Model              string    `json:"model"`
	TokenTotal         int       `json:"token_total"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// SummaryStatusResponse wraps a summary lookup; when no summary exists yet it
// reports how many evaluations are eligible versus the minimum required.
type SummaryStatusResponse struct {
	Available     bool             `json:"available"`
	EligibleCount int              `json:"eligible_count"`
	Required      int              `json:"required"`
	Summary       *SummaryResponse `json:"summary,omitempty"`
}

// GenerateSummaryResult reports the outcome of a generation request.
// NotEnoughData means no provider call was spent on an empty batch.
type GenerateSummaryResult struct {
	NotEnoughData bool             `json:"not_enough_data"`
	EligibleCount int              `json:"eligible_count"`
	Required      int              `json:"required"`
	CacheHit      bool             `json:"cache_hit"`
	Summary       *SummaryResponse `json:"summary,omitempty"`
}

// NewSummaryResponse converts a summary model into its API view.
func NewSummaryResponse(model models.AggregateSummary) SummaryResponse {
	return SummaryResponse{
		ActivityID:         model.ActivityID,
		Step:               model.Step,
		Difficulties:       decodeStringList(model.Difficulties),
		Strengths:          decodeStringList(model.Strengths),
		Recommendations:    decodeStringList(model.Recommendations),
		GeneralObservation: model.GeneralObservation,
		EvaluationCount:    model.EvaluationCount,
		Provider:           model.Provider,
		Model:              model.Model,
		TokenTotal:         model.PromptTokens + model.CompletionTokens,
		GeneratedAt:        model.GeneratedAt,
	}
}

func decodeStringList(raw []byte) []string {
	list := []string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &list)
	}
	return list
}
