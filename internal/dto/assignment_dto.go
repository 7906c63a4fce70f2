package dto

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/openlearn/lms-api/internal/models"
)

// TestCaseRequest describes one test case in assignment authoring payloads.
type TestCaseRequest struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output" validate:"required"`
	Description    string `json:"description"`
}

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	LessonID      uint              `json:"lesson_id" validate:"required,gt=0"`
	Title         string            `json:"title" validate:"required,min=3"`
	Description   string            `json:"description"`
	Kind          string            `json:"kind" validate:"required,oneof=code quiz essay file"`
	Language      string            `json:"language" validate:"omitempty,oneof=python javascript go"`
	TestCases     []TestCaseRequest `json:"test_cases" validate:"omitempty,dive"`
	TimeLimitSecs int               `json:"time_limit_secs" validate:"gte=0"`
	MaxAttempts   int               `json:"max_attempts" validate:"gte=0"`
	DueDate       *time.Time        `json:"due_date"`
	MaxScore      float64           `json:"max_score" validate:"gt=0"`
	AllowLate     bool              `json:"allow_late"`
}

// AssignmentUpdateRequest describes the payload for updating an assignment.
// Nil fields are left untouched.
type AssignmentUpdateRequest struct {
	Title         *string            `json:"title" validate:"omitempty,min=3"`
	Description   *string            `json:"description"`
	Language      *string            `json:"language" validate:"omitempty,oneof=python javascript go"`
	TestCases     *[]TestCaseRequest `json:"test_cases" validate:"omitempty,dive"`
	TimeLimitSecs *int               `json:"time_limit_secs" validate:"omitempty,gte=0"`
	MaxAttempts   *int               `json:"max_attempts" validate:"omitempty,gte=0"`
	DueDate       *time.Time         `json:"due_date"`
	MaxScore      *float64           `json:"max_score" validate:"omitempty,gt=0"`
	AllowLate     *bool              `json:"allow_late"`
	Active        *bool              `json:"active"`
}

// AssignmentFilter describes query string filters for listing assignments.
type AssignmentFilter struct {
	LessonID *uint   `query:"lesson_id"`
	Kind     *string `query:"kind" validate:"omitempty,oneof=code quiz essay file"`
	Search   string  `query:"search"`
	Sort     string  `query:"sort"`
	Page     int     `query:"page"`
	PageSize int     `query:"page_size"`
}

// AssignmentResponse is the serialized representation returned to API clients.
// Test cases carry expected outputs, so they are only included for staff.
type AssignmentResponse struct {
	ID            uint              `json:"id"`
	LessonID      uint              `json:"lesson_id"`
	TeacherID     uint              `json:"teacher_id"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Kind          string            `json:"kind"`
	Language      string            `json:"language,omitempty"`
	TestCases     []TestCaseRequest `json:"test_cases,omitempty"`
	TimeLimitSecs int               `json:"time_limit_secs"`
	MaxAttempts   int               `json:"max_attempts"`
	DueDate       *time.Time        `json:"due_date"`
	MaxScore      float64           `json:"max_score"`
	AllowLate     bool              `json:"allow_late"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID       uint       `json:"id"`
	Title    string     `json:"title"`
	Kind     string     `json:"kind"`
	DueDate  *time.Time `json:"due_date"`
	MaxScore float64    `json:"max_score"`
}

// MarshalTestCases serializes authoring test cases for storage.
func MarshalTestCases(cases []TestCaseRequest) (datatypes.JSON, error) {
	if len(cases) == 0 {
		return nil, nil
	}
	stored := make([]models.TestCase, 0, len(cases))
	for _, tc := range cases {
		stored = append(stored, models.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Description:    tc.Description,
		})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// NewAssignmentResponse converts a model into a DTO. Pass includeTestCases
// false for student-facing views.
func NewAssignmentResponse(model models.Assignment, includeTestCases bool) AssignmentResponse {
	response := AssignmentResponse{
		ID:            model.ID,
		LessonID:      model.LessonID,
		TeacherID:     model.TeacherID,
		Title:         model.Title,
		Description:   model.Description,
		Kind:          string(model.Kind),
		Language:      model.Language,
		TimeLimitSecs: model.TimeLimitSecs,
		MaxAttempts:   model.MaxAttempts,
		DueDate:       model.DueDate,
		MaxScore:      model.MaxScore,
		AllowLate:     model.AllowLate,
		Active:        model.Active,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}

	if includeTestCases && len(model.TestCases) > 0 {
		var stored []models.TestCase
		if err := json.Unmarshal(model.TestCases, &stored); err == nil {
			cases := make([]TestCaseRequest, 0, len(stored))
			for _, tc := range stored {
				cases = append(cases, TestCaseRequest{
					Input:          tc.Input,
					ExpectedOutput: tc.ExpectedOutput,
					Description:    tc.Description,
				})
			}
			response.TestCases = cases
		}
	}

	return response
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, includeTestCases bool) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, includeTestCases))
	}

	return responses
}

func newAssignmentLite(model models.Assignment) AssignmentLite {
	return AssignmentLite{
		ID:       model.ID,
		Title:    model.Title,
		Kind:     string(model.Kind),
		DueDate:  model.DueDate,
		MaxScore: model.MaxScore,
	}
}
