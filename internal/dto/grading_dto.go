package dto

// GradeRequest describes the payload for manually grading a submission.
type GradeRequest struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback"`
}

// FeedbackSuggestionResponse carries an AI-drafted feedback suggestion.
// The draft is advisory and never recorded as a grade.
type FeedbackSuggestionResponse struct {
	Feedback  string   `json:"feedback"`
	Strengths []string `json:"strengths,omitempty"`
	Issues    []string `json:"issues,omitempty"`
}
