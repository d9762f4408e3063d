package models

import (
	"time"

	"gorm.io/datatypes"
)

// AggregateSummary is the single cached synthesis of all graded evaluations
// for one (activity, step). Regeneration overwrites the row in place.
type AggregateSummary struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	ActivityID         uint           `gorm:"not null;uniqueIndex:idx_summary_step" json:"activity_id"`
	Step               int            `gorm:"not null;uniqueIndex:idx_summary_step" json:"step"`
	Difficulties       datatypes.JSON `json:"difficulties"`
	Strengths          datatypes.JSON `json:"strengths"`
	Recommendations    datatypes.JSON `json:"recommendations"`
	GeneralObservation string         `gorm:"type:text" json:"general_observation"`
	EvaluationCount    int            `gorm:"not null;default:0" json:"evaluation_count"`
	Provider           string         `gorm:"size:32" json:"provider"`
	Model              string         `gorm:"size:64" json:"model"`
	PromptTokens       int            `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens   int            `gorm:"not null;default:0" json:"completion_tokens"`
	GeneratedAt        time.Time      `gorm:"not null" json:"generated_at"`
}

// IsFresh reports whether the summary is younger than the staleness window.
func (s AggregateSummary) IsFresh(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(s.GeneratedAt) < staleAfter
}
