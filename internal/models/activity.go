package models

import "time"

// Activity is one configured occurrence of the project workflow in a course.
// It owns the switch that enables AI evaluation and the provider/model
// overrides for this instance; empty strings fall back to deployment defaults.
type Activity struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	AIEnabled  bool      `gorm:"not null;default:false" json:"ai_enabled"`
	AIProvider string    `gorm:"size:32" json:"ai_provider"`
	AIModel    string    `gorm:"size:64" json:"ai_model"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MinEvaluableStep and MaxEvaluableStep bound the workflow steps that accept
// AI evaluation. Steps 1-3 are descriptive scaffolding without grading.
const (
	MinEvaluableStep = 4
	MaxEvaluableStep = 8
)

// StepEvaluable reports whether the given workflow step supports AI evaluation.
func StepEvaluable(step int) bool {
	return step >= MinEvaluableStep && step <= MaxEvaluableStep
}
