package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/lms-api/internal/authz"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/handler"
	"github.com/openlearn/lms-api/internal/models"
)

type stubSubmissionService struct {
	response dto.SubmissionResponse
}

func (s stubSubmissionService) Submit(context.Context, authz.Actor, uint, dto.SubmissionCreateRequest, string) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s stubSubmissionService) SubmitFile(context.Context, authz.Actor, uint, *multipart.FileHeader, int, string) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s stubSubmissionService) List(context.Context, authz.Actor, uint, dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	return []dto.SubmissionResponse{s.response}, nil
}

func (s stubSubmissionService) Get(context.Context, authz.Actor, uint) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func (s stubSubmissionService) GetLatest(context.Context, authz.Actor, uint, uint) (dto.SubmissionResponse, error) {
	return s.response, nil
}

func TestSubmissionResponseContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "submission.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	score := 50.0
	gradedBy := uint(9)
	gradedAt := time.Now().UTC()
	submission := dto.SubmissionResponse{
		ID:            1,
		AssignmentID:  1,
		UserID:        7,
		Attempt:       1,
		Content:       "print(input())",
		SubmittedAt:   time.Now().UTC(),
		TimeTakenSecs: 120,
		Score:         &score,
		TestResults: []models.TestCaseResult{
			{Index: 0, Input: "1", Expected: "1", Actual: "1", Passed: true, Score: 50},
			{Index: 1, Input: "2", Expected: "2", Actual: "3", Passed: false},
		},
		GradingStatus: string(models.GradingStatusDone),
		GradedBy:      &gradedBy,
		GradedAt:      &gradedAt,
		Feedback:      "Half the cases pass.",
	}

	serviceStub := stubSubmissionService{response: submission}
	submissionHandler := handler.NewSubmissionHandler(serviceStub, zerolog.Nop())

	app := fiber.New()
	submissionHandler.RegisterSubmissionRoutes(app.Group("/api/v1/submissions"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
