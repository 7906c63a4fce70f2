package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// GradingStatus is the closed set of grading states for a submission.
type GradingStatus string

const (
	// GradingStatusPending indicates the submission is awaiting a grade.
	GradingStatusPending GradingStatus = "pending"
	// GradingStatusDone indicates a score has been recorded, automatically or manually.
	GradingStatusDone GradingStatus = "done"
)

// ParseGradingStatus validates a raw grading status value at the boundary.
func ParseGradingStatus(value string) (GradingStatus, error) {
	switch GradingStatus(strings.ToLower(strings.TrimSpace(value))) {
	case GradingStatusPending:
		return GradingStatusPending, nil
	case GradingStatusDone:
		return GradingStatusDone, nil
	default:
		return "", fmt.Errorf("unknown grading status %q", value)
	}
}

// TestCaseResult is the recorded outcome of one auto-graded test case.
type TestCaseResult struct {
	Index    int     `json:"index"`
	Input    string  `json:"input"`
	Expected string  `json:"expected"`
	Actual   string  `json:"actual"`
	Passed   bool    `json:"passed"`
	Score    float64 `json:"score"`
}

// Submission represents one attempt by one user against one assignment.
// Attempts are append-only: each attempt is a new row, never an edit in place.
type Submission struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	AssignmentID  uint           `gorm:"not null;index:idx_submissions_assignment_user" json:"assignment_id"`
	UserID        uint           `gorm:"not null;index:idx_submissions_assignment_user" json:"user_id"`
	Attempt       int            `gorm:"not null;default:1" json:"attempt"`
	Content       string         `gorm:"type:text" json:"content"`
	FileURL       string         `gorm:"size:512" json:"file_url"`
	FileName      string         `gorm:"size:255" json:"file_name"`
	FileSize      int64          `gorm:"default:0" json:"file_size"`
	FileMime      string         `gorm:"size:128" json:"file_mime"`
	SubmittedAt   time.Time      `gorm:"not null" json:"submitted_at"`
	TimeTakenSecs int            `gorm:"default:0" json:"time_taken_secs"`
	Score         *float64       `json:"score"`
	TestResults   datatypes.JSON `json:"test_results"`
	GradingStatus GradingStatus  `gorm:"size:32;not null;default:pending" json:"grading_status"`
	Graded        bool           `gorm:"not null;default:false" json:"is_graded"`
	GradedBy      *uint          `json:"graded_by"`
	GradedAt      *time.Time     `json:"graded_at"`
	Feedback      string         `gorm:"type:text" json:"feedback"`
	GradingNotes  datatypes.JSON `json:"grading_notes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Assignment    Assignment     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	User          User           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"user"`

	History []SubmissionGradeHistory `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"history"`
}

// IsGraded reports whether the submission carries a final score.
func (s Submission) IsGraded() bool {
	return s.GradingStatus == GradingStatusDone && s.Score != nil
}

// SubmissionGradeHistory is an append-only audit entry recorded on every
// manual grading action. Auto-grade test results are never rewritten here.
type SubmissionGradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID uint      `gorm:"not null;index" json:"submission_id"`
	Score        float64   `gorm:"not null" json:"score"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	GradedBy     uint      `gorm:"not null" json:"graded_by"`
	GradedAt     time.Time `gorm:"not null" json:"graded_at"`
}
