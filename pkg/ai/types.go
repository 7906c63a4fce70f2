package ai

import "context"

// ReviewInput contains the artefacts a reviewer needs to draft feedback for a
// graded or pending submission.
type ReviewInput struct {
	AssignmentTitle string
	Description     string
	Kind            string
	Language        string
	Content         string
	TestSummary     string
	Score           *float64
	MaxScore        float64
}

// ReviewResult is the structured advisory feedback returned by the reviewer.
// It never replaces a teacher's grade; it only suggests wording.
type ReviewResult struct {
	Feedback  string                 `json:"feedback"`
	Strengths []string               `json:"strengths,omitempty"`
	Issues    []string               `json:"issues,omitempty"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
}

// Reviewer describes a model capable of drafting submission feedback.
type Reviewer interface {
	Review(ctx context.Context, input ReviewInput) (ReviewResult, error)
}
