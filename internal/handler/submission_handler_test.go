package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openlearn/lms-api/internal/config"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/grader"
	"github.com/openlearn/lms-api/internal/handler"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/internal/repository"
	"github.com/openlearn/lms-api/internal/router"
	"github.com/openlearn/lms-api/internal/service"
	"github.com/openlearn/lms-api/pkg/sandbox"
)

// echoTestExecutor stands in for Docker: it reads the case input file from the
// workspace and prints it back, which matches the echo programs seeded below.
type echoTestExecutor struct{}

func (e *echoTestExecutor) Run(_ context.Context, req sandbox.ExecutionRequest) (sandbox.ExecutionResult, error) {
	input, err := os.ReadFile(filepath.Join(req.Workspace, "input.txt"))
	if err != nil {
		return sandbox.ExecutionResult{}, err
	}
	return sandbox.ExecutionResult{Stdout: string(input) + "\n", ExitCode: 0}, nil
}

type memoryFileStore struct {
	saved map[string][]byte
	saves int
}

func (m *memoryFileStore) Save(_ context.Context, name string, reader io.Reader) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.saves++
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[name] = data
	return "file://" + name, nil
}

func (m *memoryFileStore) Read(_ context.Context, ref string) ([]byte, error) {
	return m.saved[ref], nil
}

func (m *memoryFileStore) Exists(_ context.Context, ref string) (bool, error) {
	_, ok := m.saved[ref]
	return ok, nil
}

// testAuth replaces the JWT middleware: requests carry their identity in
// plain headers.
func testAuth(c *fiber.Ctx) error {
	if raw := c.Get("X-Test-User"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			c.Locals("user_id", uint(id))
		}
	}
	if role := c.Get("X-Test-Role"); role != "" {
		c.Locals("user_role", role)
	}
	return c.Next()
}

func setupTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	app, db, _ := setupTestEnv(t)
	return app, db
}

func setupTestEnv(t *testing.T) (*fiber.App, *gorm.DB, *memoryFileStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Assignment{},
		&models.Submission{},
		&models.SubmissionGradeHistory{},
		&models.Quiz{},
		&models.QuizQuestion{},
		&models.QuizOption{},
		&models.QuizSubmission{},
		&models.QuizAnswer{},
	))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	attemptRepo := repository.NewQuizSubmissionRepository(db)

	codeGrader := grader.New(&echoTestExecutor{}, grader.Config{CaseTimeout: time.Second, WorkspaceRoot: t.TempDir()}, logger)
	files := &memoryFileStore{}

	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, codeGrader, files, nil, nil, nil, validate, logger, service.SubmissionConfig{})
	quizService := service.NewQuizService(quizRepo, attemptRepo, assignmentRepo, nil, nil, nil, validate, logger, service.QuizConfig{})
	gradingService := service.NewGradingService(submissionRepo, nil, nil, nil, validate, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, quizRepo, nil, validate, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "lms-test"}, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		QuizHandler:       handler.NewQuizHandler(quizService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, logger),
		JWTMiddleware:     testAuth,
	})

	return app, db, files
}

func seedCodeAssignment(t *testing.T, db *gorm.DB, maxAttempts int) models.Assignment {
	t.Helper()
	cases, err := json.Marshal([]models.TestCase{
		{Input: "1", ExpectedOutput: "1"},
		{Input: "2", ExpectedOutput: "2"},
	})
	require.NoError(t, err)
	assignment := models.Assignment{
		LessonID:    1,
		TeacherID:   9,
		Title:       "Echo",
		Kind:        models.AssignmentKindCode,
		Language:    "python",
		TestCases:   datatypes.JSON(cases),
		MaxAttempts: maxAttempts,
		MaxScore:    100,
		Active:      true,
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}

func asUser(req *http.Request, id uint, role models.Role) *http.Request {
	req.Header.Set("X-Test-User", strconv.FormatUint(uint64(id), 10))
	req.Header.Set("X-Test-Role", string(role))
	return req
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	return req
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

type submissionEnvelope struct {
	Success bool                   `json:"success"`
	Data    dto.SubmissionResponse `json:"data"`
	Message string                 `json:"message"`
}

func TestSubmissionHandlerCreateGradesCode(t *testing.T) {
	app, db := setupTestApp(t)
	assignment := seedCodeAssignment(t, db, 3)

	target := fmt.Sprintf("/api/v1/assignments/%d/submissions", assignment.ID)
	req := asUser(jsonRequest(t, "POST", target, dto.SubmissionCreateRequest{Content: "print(input())"}), 7, models.RoleStudent)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body submissionEnvelope
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "submission accepted", body.Message)
	require.Equal(t, 1, body.Data.Attempt)
	require.NotNil(t, body.Data.Score)
	require.Equal(t, 100.0, *body.Data.Score)
	require.Len(t, body.Data.TestResults, 2)
}

func TestSubmissionHandlerAttemptLimitConflict(t *testing.T) {
	app, db := setupTestApp(t)
	assignment := seedCodeAssignment(t, db, 1)

	target := fmt.Sprintf("/api/v1/assignments/%d/submissions", assignment.ID)
	payload := dto.SubmissionCreateRequest{Content: "print(input())"}

	resp, err := app.Test(asUser(jsonRequest(t, "POST", target, payload), 7, models.RoleStudent))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp, err = app.Test(asUser(jsonRequest(t, "POST", target, payload), 7, models.RoleStudent))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	var body submissionEnvelope
	decodeResponse(t, resp, &body)
	require.False(t, body.Success)
}

func TestSubmissionHandlerUnknownAssignment(t *testing.T) {
	app, _ := setupTestApp(t)

	req := asUser(jsonRequest(t, "POST", "/api/v1/assignments/404/submissions", dto.SubmissionCreateRequest{Content: "x"}), 7, models.RoleStudent)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSubmissionHandlerFileUpload(t *testing.T) {
	app, db := setupTestApp(t)
	assignment := seedCodeAssignment(t, db, 3)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "solution.py")
	require.NoError(t, err)
	_, err = part.Write([]byte("print(input())"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("time_taken_secs", "90"))
	require.NoError(t, writer.Close())

	target := fmt.Sprintf("/api/v1/assignments/%d/submissions/file", assignment.ID)
	req := httptest.NewRequest("POST", target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	asUser(req, 7, models.RoleStudent)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var envelope submissionEnvelope
	decodeResponse(t, resp, &envelope)
	require.Equal(t, "solution.py", envelope.Data.FileName)
	require.NotEmpty(t, envelope.Data.FileURL)
	require.Equal(t, 90, envelope.Data.TimeTakenSecs)
	require.NotNil(t, envelope.Data.Score)
	require.Equal(t, 100.0, *envelope.Data.Score)
}

func TestSubmissionHandlerFileUploadRejectionStoresNothing(t *testing.T) {
	app, db, files := setupTestEnv(t)
	assignment := seedCodeAssignment(t, db, 1)
	target := fmt.Sprintf("/api/v1/assignments/%d/submissions/file", assignment.ID)

	upload := func() *http.Request {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "solution.py")
		require.NoError(t, err)
		_, err = part.Write([]byte("print(input())"))
		require.NoError(t, err)
		require.NoError(t, writer.Close())
		req := httptest.NewRequest("POST", target, body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return asUser(req, 7, models.RoleStudent)
	}

	resp, err := app.Test(upload())
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, 1, files.saves)

	// The second attempt is over the cap; no orphaned object may remain.
	resp, err = app.Test(upload())
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, 1, files.saves)
}

func TestSubmissionHandlerRejectsDisallowedExtension(t *testing.T) {
	app, db := setupTestApp(t)
	assignment := seedCodeAssignment(t, db, 3)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "solution.exe")
	require.NoError(t, err)
	_, err = part.Write([]byte("MZ"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	target := fmt.Sprintf("/api/v1/assignments/%d/submissions/file", assignment.ID)
	req := httptest.NewRequest("POST", target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	asUser(req, 7, models.RoleStudent)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSubmissionHandlerListScopesStudents(t *testing.T) {
	app, db := setupTestApp(t)
	assignment := seedCodeAssignment(t, db, 5)

	target := fmt.Sprintf("/api/v1/assignments/%d/submissions", assignment.ID)
	for _, userID := range []uint{7, 8} {
		resp, err := app.Test(asUser(jsonRequest(t, "POST", target, dto.SubmissionCreateRequest{Content: "print(input())"}), userID, models.RoleStudent))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
		require.NoError(t, resp.Body.Close())
	}

	listReq := httptest.NewRequest("GET", target, nil)
	asUser(listReq, 7, models.RoleStudent)
	resp, err := app.Test(listReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var listBody struct {
		Success bool                     `json:"success"`
		Data    []dto.SubmissionResponse `json:"data"`
	}
	decodeResponse(t, resp, &listBody)
	require.Len(t, listBody.Data, 1)
	require.Equal(t, uint(7), listBody.Data[0].UserID)

	teacherReq := httptest.NewRequest("GET", target, nil)
	asUser(teacherReq, 9, models.RoleTeacher)
	resp, err = app.Test(teacherReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &listBody)
	require.Len(t, listBody.Data, 2)
}

func TestSubmissionHandlerGetBlocksOtherStudents(t *testing.T) {
	app, db := setupTestApp(t)
	assignment := seedCodeAssignment(t, db, 3)

	target := fmt.Sprintf("/api/v1/assignments/%d/submissions", assignment.ID)
	resp, err := app.Test(asUser(jsonRequest(t, "POST", target, dto.SubmissionCreateRequest{Content: "print(input())"}), 7, models.RoleStudent))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created submissionEnvelope
	decodeResponse(t, resp, &created)

	getTarget := fmt.Sprintf("/api/v1/submissions/%d", created.Data.ID)
	otherReq := httptest.NewRequest("GET", getTarget, nil)
	asUser(otherReq, 8, models.RoleStudent)
	resp, err = app.Test(otherReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	ownerReq := httptest.NewRequest("GET", getTarget, nil)
	asUser(ownerReq, 7, models.RoleStudent)
	resp, err = app.Test(ownerReq)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
