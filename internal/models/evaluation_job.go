package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/pedagolab/stepflow-api/pkg/ai"
)

// EvaluationJob lifecycle statuses. A job moves pending -> processing ->
// completed|failed, and a completed job may be promoted to applied by a
// teacher. failed is terminal; retrying means creating a fresh row.
const (
	EvaluationStatusPending    = "pending"
	EvaluationStatusProcessing = "processing"
	EvaluationStatusCompleted  = "completed"
	EvaluationStatusFailed     = "failed"
	EvaluationStatusApplied    = "applied"
)

// EvaluationJob records one attempt to AI-grade one submission.
type EvaluationJob struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	ActivityID   uint `gorm:"not null;index:idx_eval_target" json:"activity_id"`
	Step         int  `gorm:"not null;index:idx_eval_target" json:"step"`
	SubmissionID uint `gorm:"not null;index:idx_eval_target" json:"submission_id"`
	GroupID      uint `gorm:"not null;default:0" json:"group_id"`
	UserID       uint `gorm:"not null;default:0" json:"user_id"`

	Provider         string `gorm:"size:32" json:"provider"`
	Model            string `gorm:"size:64" json:"model"`
	PromptTokens     int    `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int    `gorm:"not null;default:0" json:"completion_tokens"`
	RawResponse      string `gorm:"type:text" json:"-"`

	Grade           *float64       `json:"grade"`
	Feedback        string         `gorm:"type:text" json:"feedback"`
	Criteria        datatypes.JSON `json:"criteria"`
	KeywordsFound   datatypes.JSON `json:"keywords_found"`
	KeywordsMissing datatypes.JSON `json:"keywords_missing"`
	Suggestions     datatypes.JSON `json:"suggestions"`

	Status       string `gorm:"size:32;not null;index" json:"status"`
	ErrorMessage string `gorm:"type:text" json:"error_message"`

	AppliedBy *uint      `json:"applied_by"`
	AppliedAt *time.Time `json:"applied_at"`

	ShowFeedback        bool `gorm:"not null;default:true" json:"show_feedback"`
	ShowCriteria        bool `gorm:"not null;default:true" json:"show_criteria"`
	ShowKeywordsFound   bool `gorm:"not null;default:true" json:"show_keywords_found"`
	ShowKeywordsMissing bool `gorm:"not null;default:true" json:"show_keywords_missing"`
	ShowSuggestions     bool `gorm:"not null;default:true" json:"show_suggestions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the job reached a state the worker must not
// reprocess.
func (j EvaluationJob) IsTerminal() bool {
	switch j.Status {
	case EvaluationStatusCompleted, EvaluationStatusFailed, EvaluationStatusApplied:
		return true
	}
	return false
}

// HasResult reports whether parsed fields are meaningful for display.
func (j EvaluationJob) HasResult() bool {
	return j.Status == EvaluationStatusCompleted || j.Status == EvaluationStatusApplied
}

// IsApplied reports whether a teacher released this evaluation.
func (j EvaluationJob) IsApplied() bool {
	return j.Status == EvaluationStatusApplied
}

// DisplayOptions maps the stored visibility flags onto the renderer options.
func (j EvaluationJob) DisplayOptions() ai.DisplayOptions {
	return ai.DisplayOptions{
		ShowFeedback:        j.ShowFeedback,
		ShowCriteria:        j.ShowCriteria,
		ShowKeywordsFound:   j.ShowKeywordsFound,
		ShowKeywordsMissing: j.ShowKeywordsMissing,
		ShowSuggestions:     j.ShowSuggestions,
	}
}

// SetResult stores a parsed evaluation onto the row, marshalling the list
// fields into their JSON columns.
func (j *EvaluationJob) SetResult(result ai.EvaluationResult) error {
	criteria, err := json.Marshal(result.Criteria)
	if err != nil {
		return err
	}
	found, err := json.Marshal(result.KeywordsFound)
	if err != nil {
		return err
	}
	missing, err := json.Marshal(result.KeywordsMissing)
	if err != nil {
		return err
	}
	suggestions, err := json.Marshal(result.Suggestions)
	if err != nil {
		return err
	}

	j.Grade = result.Grade
	j.Feedback = result.Feedback
	j.Criteria = datatypes.JSON(criteria)
	j.KeywordsFound = datatypes.JSON(found)
	j.KeywordsMissing = datatypes.JSON(missing)
	j.Suggestions = datatypes.JSON(suggestions)
	return nil
}

// Result rebuilds the parsed evaluation from the JSON columns.
func (j EvaluationJob) Result() (ai.EvaluationResult, error) {
	result := ai.EvaluationResult{
		Grade:           j.Grade,
		Feedback:        j.Feedback,
		Criteria:        []ai.Criterion{},
		KeywordsFound:   []string{},
		KeywordsMissing: []string{},
		Suggestions:     []string{},
	}

	if len(j.Criteria) > 0 {
		if err := json.Unmarshal(j.Criteria, &result.Criteria); err != nil {
			return ai.EvaluationResult{}, err
		}
	}
	if len(j.KeywordsFound) > 0 {
		if err := json.Unmarshal(j.KeywordsFound, &result.KeywordsFound); err != nil {
			return ai.EvaluationResult{}, err
		}
	}
	if len(j.KeywordsMissing) > 0 {
		if err := json.Unmarshal(j.KeywordsMissing, &result.KeywordsMissing); err != nil {
			return ai.EvaluationResult{}, err
		}
	}
	if len(j.Suggestions) > 0 {
		if err := json.Unmarshal(j.Suggestions, &result.Suggestions); err != nil {
			return ai.EvaluationResult{}, err
		}
	}
	return result, nil
}
