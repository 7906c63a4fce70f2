package models

import (
	"fmt"
	"strings"
	"time"
)

// QuestionType is the closed set of supported quiz question variants.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeText           QuestionType = "text"
)

// ParseQuestionType validates a raw question type value at the boundary.
func ParseQuestionType(value string) (QuestionType, error) {
	switch QuestionType(strings.ToLower(strings.TrimSpace(value))) {
	case QuestionTypeMultipleChoice:
		return QuestionTypeMultipleChoice, nil
	case QuestionTypeTrueFalse:
		return QuestionTypeTrueFalse, nil
	case QuestionTypeText:
		return QuestionTypeText, nil
	default:
		return "", fmt.Errorf("unknown question type %q", value)
	}
}

// Quiz is the one-to-one extension of a quiz-kind assignment. It owns the
// ordered question set used for presentation and scoring.
type Quiz struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	AssignmentID       uint           `gorm:"not null;uniqueIndex" json:"assignment_id"`
	TimeLimitSecs      int            `gorm:"default:0" json:"time_limit_secs"`
	MaxAttempts        int            `gorm:"not null;default:1" json:"max_attempts"`
	ShuffleQuestions   bool           `gorm:"not null;default:false" json:"shuffle_questions"`
	ShowCorrectAnswers bool           `gorm:"not null;default:false" json:"show_correct_answers"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	Assignment         Assignment     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Questions          []QuizQuestion `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
}

// MaxScore is the sum of question points.
func (q Quiz) MaxScore() float64 {
	var total float64
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// QuizQuestion is one question in a quiz, ordered by Position.
type QuizQuestion struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	QuizID    uint         `gorm:"not null;index" json:"quiz_id"`
	Text      string       `gorm:"type:text;not null" json:"text"`
	Type      QuestionType `gorm:"size:32;not null" json:"type"`
	Points    float64      `gorm:"not null" json:"points"`
	Position  int          `gorm:"not null" json:"position"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Options   []QuizOption `gorm:"foreignKey:QuestionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"options"`
}

// CorrectOption returns the option flagged correct, or nil when none exists.
func (q QuizQuestion) CorrectOption() *QuizOption {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return &q.Options[i]
		}
	}
	return nil
}

// QuizOption is one selectable answer for a multiple-choice style question.
// For text questions the single correct option holds the expected answer.
type QuizOption struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;index" json:"question_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	IsCorrect  bool      `gorm:"not null;default:false" json:"is_correct"`
	Position   int       `gorm:"not null" json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}
