package models

import "time"

// QuizSubmission is one scored attempt by one user against one quiz.
type QuizSubmission struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	QuizID        uint         `gorm:"not null;index:idx_quiz_submissions_quiz_user" json:"quiz_id"`
	UserID        uint         `gorm:"not null;index:idx_quiz_submissions_quiz_user" json:"user_id"`
	Attempt       int          `gorm:"not null;default:1" json:"attempt"`
	Score         float64      `gorm:"not null" json:"score"`
	MaxScore      float64      `gorm:"not null" json:"max_score"`
	TimeTakenSecs int          `gorm:"default:0" json:"time_taken_secs"`
	SubmittedAt   time.Time    `gorm:"not null" json:"submitted_at"`
	CreatedAt     time.Time    `json:"created_at"`
	Quiz          Quiz         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	User          User         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Answers       []QuizAnswer `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers"`
}

// QuizAnswer records how one question was answered in one attempt.
// Exactly one row exists per (submission, question); unanswered questions
// still produce a row with zero points.
type QuizAnswer struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	QuizSubmissionID uint      `gorm:"not null;index:idx_quiz_answers_submission_question,unique" json:"quiz_submission_id"`
	QuestionID       uint      `gorm:"not null;index:idx_quiz_answers_submission_question,unique" json:"question_id"`
	SelectedOptionID *uint     `json:"selected_option_id"`
	TextAnswer       string    `gorm:"type:text" json:"text_answer"`
	IsCorrect        bool      `gorm:"not null;default:false" json:"is_correct"`
	PointsEarned     float64   `gorm:"not null;default:0" json:"points_earned"`
	CreatedAt        time.Time `json:"created_at"`
}
