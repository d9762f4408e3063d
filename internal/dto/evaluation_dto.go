package dto

import (
	"time"

	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/pkg/ai"
)

// QueueEvaluationRequest asks for one submission to be queued for AI grading.
// The step range is enforced by the service so non-HTTP callers get the same
// validation.
type QueueEvaluationRequest struct {
	ActivityID   uint `json:"activity_id" validate:"required,gt=0"`
	Step         int  `json:"step" validate:"required"`
	SubmissionID uint `json:"submission_id" validate:"required,gt=0"`
	GroupID      uint `json:"group_id"`
	UserID       uint `json:"user_id"`
}

// BulkReevaluateRequest asks for every submitted submission of a step to be
// re-queued from scratch.
type BulkReevaluateRequest struct {
	ActivityID uint `json:"activity_id" validate:"required,gt=0"`
	Step       int  `json:"step" validate:"required"`
}

// BulkError reports one submission that could not be re-queued.
type BulkError struct {
	SubmissionID uint   `json:"submission_id"`
	Message      string `json:"message"`
}

// BulkReevaluateResult summarizes a bulk re-evaluation run. Per-submission
// failures are collected here instead of aborting the batch.
type BulkReevaluateResult struct {
	Deleted int         `json:"deleted"`
	Queued  int         `json:"queued"`
	Errors  []BulkError `json:"errors"`
}

// VisibilityFlags selects which evaluation sections the student may see once
// the grade is applied. Omitted fields default to visible.
type VisibilityFlags struct {
	ShowFeedback        *bool `json:"show_feedback"`
	ShowCriteria        *bool `json:"show_criteria"`
	ShowKeywordsFound   *bool `json:"show_keywords_found"`
	ShowKeywordsMissing *bool `json:"show_keywords_missing"`
	ShowSuggestions     *bool `json:"show_suggestions"`
}

func flagOrDefault(flag *bool) bool {
	if flag == nil {
		return true
	}
	return *flag
}

// ResolvedVisibility is VisibilityFlags with the visible-by-default rule
// applied.
type ResolvedVisibility struct {
	ShowFeedback        bool
	ShowCriteria        bool
	ShowKeywordsFound   bool
	ShowKeywordsMissing bool
	ShowSuggestions     bool
}

// Resolve applies the default-true rule to every omitted flag.
func (f VisibilityFlags) Resolve() ResolvedVisibility {
	return ResolvedVisibility{
		ShowFeedback:        flagOrDefault(f.ShowFeedback),
		ShowCriteria:        flagOrDefault(f.ShowCriteria),
		ShowKeywordsFound:   flagOrDefault(f.ShowKeywordsFound),
		ShowKeywordsMissing: flagOrDefault(f.ShowKeywordsMissing),
		ShowSuggestions:     flagOrDefault(f.ShowSuggestions),
	}
}

// ApplyGradeRequest carries the visibility choices of an apply action.
type ApplyGradeRequest struct {
	Flags VisibilityFlags `json:"visibility"`
}

// TestProviderRequest checks connectivity of one provider/key pair.
type TestProviderRequest struct {
	Provider string `json:"provider" validate:"required"`
	APIKey   string `json:"api_key" validate:"required"`
}

// TestProviderResponse reports the outcome of a connection test.
type TestProviderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CriterionResponse serializes one rubric line.
type CriterionResponse struct {
	Name    string `json:"name"`
	Met     string `json:"met"`
	Comment string `json:"comment"`
}

// StatusInfoResponse is the derived display descriptor for a job status.
type StatusInfoResponse struct {
	Label    string `json:"label"`
	Terminal bool   `json:"terminal"`
	IsError  bool   `json:"is_error"`
}

// EvaluationJobResponse is the API view of one evaluation job. Parsed result
// fields are present only for completed/applied jobs; the error message and
// rendered HTML only for callers allowed to grade.
type EvaluationJobResponse struct {
	ID           uint               `json:"id"`
	ActivityID   uint               `json:"activity_id"`
	Step         int                `json:"step"`
	SubmissionID uint               `json:"submission_id"`
	GroupID      uint               `json:"group_id"`
	UserID       uint               `json:"user_id"`
	Provider     string             `json:"provider"`
	Model        string             `json:"model"`
	Status       string             `json:"status"`
	StatusInfo   StatusInfoResponse `json:"status_info"`

	Grade           *float64            `json:"grade,omitempty"`
	Feedback        string              `json:"feedback,omitempty"`
	Criteria        []CriterionResponse `json:"criteria,omitempty"`
	KeywordsFound   []string            `json:"keywords_found,omitempty"`
	KeywordsMissing []string            `json:"keywords_missing,omitempty"`
	Suggestions     []string            `json:"suggestions,omitempty"`
	TokenTotal      int                 `json:"token_total,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	RenderedHTML string `json:"rendered_html,omitempty"`

	AppliedBy *uint      `json:"applied_by,omitempty"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EvaluationStatusResponse wraps a job lookup; a missing job is reported as
// has_evaluation=false rather than an error.
type EvaluationStatusResponse struct {
	HasEvaluation bool                   `json:"has_evaluation"`
	Job           *EvaluationJobResponse `json:"job,omitempty"`
}

// QueueEvaluationResponse returns the queued job id.
type QueueEvaluationResponse struct {
	JobID uint `json:"job_id"`
}

// NewEvaluationJobResponse converts a job model into its API view.
// includeRestricted grants the teacher-only fields (error message, rendered
// HTML, unapplied results). Without it, the parsed result appears only once a
// teacher applied the job, and each section honors the stored visibility
// flags.
func NewEvaluationJobResponse(job models.EvaluationJob, info StatusInfoResponse, includeRestricted bool) EvaluationJobResponse {
	response := EvaluationJobResponse{
		ID:           job.ID,
		ActivityID:   job.ActivityID,
		Step:         job.Step,
		SubmissionID: job.SubmissionID,
		GroupID:      job.GroupID,
		UserID:       job.UserID,
		Provider:     job.Provider,
		Model:        job.Model,
		Status:       job.Status,
		StatusInfo:   info,
		AppliedBy:    job.AppliedBy,
		AppliedAt:    job.AppliedAt,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}

	if includeRestricted {
		response.ErrorMessage = job.ErrorMessage
	}

	if !job.HasResult() {
		return response
	}
	if !includeRestricted && !job.IsApplied() {
		return response
	}

	result, err := job.Result()
	if err != nil {
		return response
	}

	visibility := ai.AllVisible()
	if !includeRestricted {
		visibility = job.DisplayOptions()
	}

	response.Grade = result.Grade
	response.TokenTotal = job.PromptTokens + job.CompletionTokens
	if visibility.ShowFeedback {
		response.Feedback = result.Feedback
	}
	if visibility.ShowCriteria {
		response.Criteria = newCriteriaResponse(result.Criteria)
	}
	if visibility.ShowKeywordsFound {
		response.KeywordsFound = result.KeywordsFound
	}
	if visibility.ShowKeywordsMissing {
		response.KeywordsMissing = result.KeywordsMissing
	}
	if visibility.ShowSuggestions {
		response.Suggestions = result.Suggestions
	}

	if includeRestricted {
		response.RenderedHTML = ai.FormatForDisplay(result, ai.AllVisible())
	}

	return response
}

func newCriteriaResponse(criteria []ai.Criterion) []CriterionResponse {
	responses := make([]CriterionResponse, 0, len(criteria))
	for _, criterion := range criteria {
		responses = append(responses, CriterionResponse(criterion))
	}
	return responses
}
