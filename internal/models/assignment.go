package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// AssignmentKind is the closed set of gradable assignment variants.
type AssignmentKind string

const (
	AssignmentKindCode  AssignmentKind = "code"
	AssignmentKindQuiz  AssignmentKind = "quiz"
	AssignmentKindEssay AssignmentKind = "essay"
	AssignmentKindFile  AssignmentKind = "file"
)

// ParseAssignmentKind validates a raw kind value at the boundary.
func ParseAssignmentKind(value string) (AssignmentKind, error) {
	switch AssignmentKind(strings.ToLower(strings.TrimSpace(value))) {
	case AssignmentKindCode:
		return AssignmentKindCode, nil
	case AssignmentKindQuiz:
		return AssignmentKindQuiz, nil
	case AssignmentKindEssay:
		return AssignmentKindEssay, nil
	case AssignmentKindFile:
		return AssignmentKindFile, nil
	default:
		return "", fmt.Errorf("unknown assignment kind %q", value)
	}
}

// TestCase is one entry of a code assignment's ordered test-case list.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Description    string `json:"description,omitempty"`
}

// Assignment represents a gradable unit attached to a lesson.
type Assignment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	LessonID      uint           `gorm:"not null;index" json:"lesson_id"`
	TeacherID     uint           `gorm:"not null;index" json:"teacher_id"`
	Title         string         `gorm:"size:255;not null" json:"title"`
	Description   string         `gorm:"type:text" json:"description"`
	Kind          AssignmentKind `gorm:"size:32;not null" json:"kind"`
	Language      string         `gorm:"size:32" json:"language"`
	TestCases     datatypes.JSON `json:"test_cases"`
	TimeLimitSecs int            `gorm:"default:0" json:"time_limit_secs"`
	MaxAttempts   int            `gorm:"not null;default:1" json:"max_attempts"`
	DueDate       *time.Time     `json:"due_date"`
	MaxScore      float64        `gorm:"not null;default:100" json:"max_score"`
	AllowLate     bool           `gorm:"not null;default:false" json:"allow_late"`
	Active        bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Submissions   []Submission   `json:"-"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.DueDate != nil && reference.After(*a.DueDate)
}

// AcceptsSubmissionAt reports whether a new submission at the given instant is
// allowed under the deadline policy.
func (a Assignment) AcceptsSubmissionAt(reference time.Time) bool {
	return !a.IsPastDue(reference) || a.AllowLate
}
