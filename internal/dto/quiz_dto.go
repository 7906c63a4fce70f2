package dto

import (
	"time"

	"github.com/openlearn/lms-api/internal/models"
)

// QuizOptionRequest describes one answer option in quiz authoring payloads.
type QuizOptionRequest struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

// QuizQuestionRequest describes one question in quiz authoring payloads.
type QuizQuestionRequest struct {
	Text    string              `json:"text" validate:"required"`
	Type    string              `json:"type" validate:"required,oneof=multiple_choice true_false text"`
	Points  float64             `json:"points" validate:"gt=0"`
	Options []QuizOptionRequest `json:"options" validate:"omitempty,dive"`
	// Answer holds the expected text for text questions.
	Answer string `json:"answer"`
}

// QuizCreateRequest describes the payload for attaching a quiz to an assignment.
type QuizCreateRequest struct {
	TimeLimitSecs      int                   `json:"time_limit_secs" validate:"gte=0"`
	MaxAttempts        int                   `json:"max_attempts" validate:"gte=0"`
	ShuffleQuestions   bool                  `json:"shuffle_questions"`
	ShowCorrectAnswers bool                  `json:"show_correct_answers"`
	Questions          []QuizQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

// QuizAnswerRequest is one answer in a quiz submission payload. Either
// SelectedOptionID or TextAnswer is set depending on the question type.
type QuizAnswerRequest struct {
	QuestionID       uint   `json:"question_id" validate:"required,gt=0"`
	SelectedOptionID *uint  `json:"selected_option_id"`
	TextAnswer       string `json:"text_answer"`
}

// QuizSubmitRequest describes the payload for submitting quiz answers.
type QuizSubmitRequest struct {
	Answers       []QuizAnswerRequest `json:"answers" validate:"dive"`
	TimeTakenSecs int                 `json:"time_taken_secs" validate:"gte=0"`
}

// QuizOptionView is an option as presented to a quiz taker. Correctness
// flags are stripped.
type QuizOptionView struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// QuizQuestionView is a question as presented to a quiz taker.
type QuizQuestionView struct {
	ID      uint             `json:"id"`
	Text    string           `json:"text"`
	Type    string           `json:"type"`
	Points  float64          `json:"points"`
	Options []QuizOptionView `json:"options,omitempty"`
}

// QuizStartResponse is returned when a quiz attempt begins. Question order
// reflects the shuffle applied to this attempt.
type QuizStartResponse struct {
	QuizID        uint               `json:"quiz_id"`
	AssignmentID  uint               `json:"assignment_id"`
	Attempt       int                `json:"attempt"`
	TimeLimitSecs int                `json:"time_limit_secs"`
	MaxScore      float64            `json:"max_score"`
	StartedAt     time.Time          `json:"started_at"`
	Questions     []QuizQuestionView `json:"questions"`
}

// QuizAnswerResult is the per-question outcome in a quiz result.
type QuizAnswerResult struct {
	QuestionID       uint    `json:"question_id"`
	SelectedOptionID *uint   `json:"selected_option_id"`
	TextAnswer       string  `json:"text_answer,omitempty"`
	IsCorrect        bool    `json:"is_correct"`
	PointsEarned     float64 `json:"points_earned"`
	CorrectOptionID  *uint   `json:"correct_option_id,omitempty"`
	CorrectAnswer    string  `json:"correct_answer,omitempty"`
	Points           float64 `json:"points"`
}

// QuizResultResponse is the scored outcome of a quiz attempt.
type QuizResultResponse struct {
	ID            uint               `json:"id"`
	QuizID        uint               `json:"quiz_id"`
	UserID        uint               `json:"user_id"`
	Attempt       int                `json:"attempt"`
	Score         float64            `json:"score"`
	MaxScore      float64            `json:"max_score"`
	Percentage    float64            `json:"percentage"`
	TimeTakenSecs int                `json:"time_taken_secs"`
	SubmittedAt   time.Time          `json:"submitted_at"`
	Answers       []QuizAnswerResult `json:"answers"`
}

// NewQuizQuestionView strips grading data from a question for presentation.
func NewQuizQuestionView(question models.QuizQuestion) QuizQuestionView {
	view := QuizQuestionView{
		ID:     question.ID,
		Text:   question.Text,
		Type:   string(question.Type),
		Points: question.Points,
	}
	if question.Type != models.QuestionTypeText {
		options := make([]QuizOptionView, 0, len(question.Options))
		for _, option := range question.Options {
			options = append(options, QuizOptionView{ID: option.ID, Text: option.Text})
		}
		view.Options = options
	}
	return view
}

// NewQuizResultResponse converts a scored attempt into a DTO. When
// revealAnswers is true the correct option and expected text are included
// per answer, following the quiz's show_correct_answers setting.
func NewQuizResultResponse(model models.QuizSubmission, quiz models.Quiz, revealAnswers bool) QuizResultResponse {
	questionsByID := make(map[uint]models.QuizQuestion, len(quiz.Questions))
	for _, question := range quiz.Questions {
		questionsByID[question.ID] = question
	}

	response := QuizResultResponse{
		ID:            model.ID,
		QuizID:        model.QuizID,
		UserID:        model.UserID,
		Attempt:       model.Attempt,
		Score:         model.Score,
		MaxScore:      model.MaxScore,
		TimeTakenSecs: model.TimeTakenSecs,
		SubmittedAt:   model.SubmittedAt,
	}
	if model.MaxScore > 0 {
		response.Percentage = model.Score / model.MaxScore * 100
	}

	answers := make([]QuizAnswerResult, 0, len(model.Answers))
	for _, answer := range model.Answers {
		result := QuizAnswerResult{
			QuestionID:       answer.QuestionID,
			SelectedOptionID: answer.SelectedOptionID,
			TextAnswer:       answer.TextAnswer,
			IsCorrect:        answer.IsCorrect,
			PointsEarned:     answer.PointsEarned,
		}
		if question, ok := questionsByID[answer.QuestionID]; ok {
			result.Points = question.Points
			if revealAnswers {
				if correct := question.CorrectOption(); correct != nil {
					if question.Type == models.QuestionTypeText {
						result.CorrectAnswer = correct.Text
					} else {
						id := correct.ID
						result.CorrectOptionID = &id
					}
				}
			}
		}
		answers = append(answers, result)
	}
	response.Answers = answers

	return response
}
