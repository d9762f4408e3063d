package models

import "time"

// StepSubmission statuses.
const (
	StepSubmissionStatusDraft     = "draft"
	StepSubmissionStatusSubmitted = "submitted"
)

// StepSubmission holds a group's or user's answer content for one workflow
// step. The evaluation core only reads its identifying fields and content, and
// writes grade/feedback back when a teacher applies an AI result.
type StepSubmission struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ActivityID uint       `gorm:"not null;index:idx_submission_step" json:"activity_id"`
	Step       int        `gorm:"not null;index:idx_submission_step" json:"step"`
	GroupID    uint       `gorm:"not null;default:0" json:"group_id"`
	UserID     uint       `gorm:"not null;default:0" json:"user_id"`
	Content    string     `gorm:"type:text" json:"content"`
	Status     string     `gorm:"size:32;not null" json:"status"`
	Grade      *float64   `json:"grade"`
	Feedback   string     `gorm:"type:text" json:"feedback"`
	GradedBy   *uint      `json:"graded_by"`
	GradedAt   *time.Time `json:"graded_at"`
	DueDate    *time.Time `json:"due_date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsSubmitted reports whether the submission left the draft stage.
func (s StepSubmission) IsSubmitted() bool {
	return s.Status == StepSubmissionStatusSubmitted
}

// IsOverdue reports whether a draft is past its deadline at the given instant.
func (s StepSubmission) IsOverdue(now time.Time) bool {
	return s.Status == StepSubmissionStatusDraft && s.DueDate != nil && s.DueDate.Before(now)
}
