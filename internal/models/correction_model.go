package models

import "time"

// CorrectionModel is the teacher-authored reference answer and free-text
// grading instructions for one (activity, step) pair. The evaluation core
// treats it as read-only input when building prompts.
type CorrectionModel struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ActivityID      uint      `gorm:"not null;uniqueIndex:idx_correction_step" json:"activity_id"`
	Step            int       `gorm:"not null;uniqueIndex:idx_correction_step" json:"step"`
	ReferenceAnswer string    `gorm:"type:text" json:"reference_answer"`
	Instructions    string    `gorm:"type:text" json:"instructions"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
