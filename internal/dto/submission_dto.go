package dto

import (
	"encoding/json"
	"time"

	"github.com/openlearn/lms-api/internal/models"
)

// SubmissionCreateRequest describes the payload for text and code submissions.
// File submissions arrive as multipart uploads and carry no body.
type SubmissionCreateRequest struct {
	Content       string `json:"content" form:"content"`
	TimeTakenSecs int    `json:"time_taken_secs" form:"time_taken_secs" validate:"gte=0"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	UserID        *uint   `query:"user_id"`
	GradingStatus *string `query:"grading_status" validate:"omitempty,oneof=pending done"`
}

// UserLite summarizes a user without exposing full profile data.
type UserLite struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Score    float64   `json:"score"`
	Feedback string    `json:"feedback"`
	GradedBy uint      `json:"graded_by"`
	GradedAt time.Time `json:"graded_at"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID            uint                             `json:"id"`
	AssignmentID  uint                             `json:"assignment_id"`
	UserID        uint                             `json:"user_id"`
	Attempt       int                              `json:"attempt"`
	Content       string                           `json:"content,omitempty"`
	FileURL       string                           `json:"file_url,omitempty"`
	FileName      string                           `json:"file_name,omitempty"`
	FileSize      int64                            `json:"file_size,omitempty"`
	SubmittedAt   time.Time                        `json:"submitted_at"`
	TimeTakenSecs int                              `json:"time_taken_secs"`
	Score         *float64                         `json:"score"`
	TestResults   []models.TestCaseResult          `json:"test_results,omitempty"`
	GradingStatus string                           `json:"grading_status"`
	GradedBy      *uint                            `json:"graded_by"`
	GradedAt      *time.Time                       `json:"graded_at"`
	Feedback      string                           `json:"feedback"`
	History       []SubmissionGradeHistoryResponse `json:"history,omitempty"`
	Assignment    AssignmentLite                   `json:"assignment"`
	User          UserLite                         `json:"user"`
	CreatedAt     time.Time                        `json:"created_at"`
	UpdatedAt     time.Time                        `json:"updated_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:            model.ID,
		AssignmentID:  model.AssignmentID,
		UserID:        model.UserID,
		Attempt:       model.Attempt,
		Content:       model.Content,
		FileURL:       model.FileURL,
		FileName:      model.FileName,
		FileSize:      model.FileSize,
		SubmittedAt:   model.SubmittedAt,
		TimeTakenSecs: model.TimeTakenSecs,
		Score:         model.Score,
		GradingStatus: string(model.GradingStatus),
		GradedBy:      model.GradedBy,
		GradedAt:      model.GradedAt,
		Feedback:      model.Feedback,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}

	if len(model.TestResults) > 0 {
		var results []models.TestCaseResult
		if err := json.Unmarshal(model.TestResults, &results); err == nil {
			response.TestResults = results
		}
	}

	if model.Assignment.ID != 0 {
		response.Assignment = newAssignmentLite(model.Assignment)
	}

	if model.User.ID != 0 {
		response.User = UserLite{
			ID:    model.User.ID,
			Name:  model.User.Name,
			Email: model.User.Email,
		}
	}

	if len(model.History) > 0 {
		history := make([]SubmissionGradeHistoryResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, SubmissionGradeHistoryResponse{
				Score:    entry.Score,
				Feedback: entry.Feedback,
				GradedBy: entry.GradedBy,
				GradedAt: entry.GradedAt,
			})
		}
		response.History = history
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
