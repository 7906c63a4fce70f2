package performance_test

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/openlearn/lms-api/internal/handler"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/internal/repository"
	"github.com/openlearn/lms-api/internal/service"
)

func setupSubmissionListApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Assignment{}, &models.Submission{}, &models.SubmissionGradeHistory{}))

	assignment := models.Assignment{
		LessonID:  1,
		TeacherID: 9,
		Title:     "Echo",
		Kind:      models.AssignmentKindEssay,
		MaxScore:  100,
		Active:    true,
	}
	require.NoError(t, db.Create(&assignment).Error)

	now := time.Now().UTC()
	score := 80.0
	for i := 0; i < 200; i++ {
		submission := models.Submission{
			AssignmentID:  assignment.ID,
			UserID:        uint(i%20 + 1),
			Attempt:       i/20 + 1,
			Content:       "answer",
			SubmittedAt:   now.Add(time.Duration(i) * time.Second),
			Score:         &score,
			GradingStatus: models.GradingStatusDone,
		}
		require.NoError(t, db.Create(&submission).Error)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.Nop()

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, nil, nil, nil, nil, nil, validate, logger, service.SubmissionConfig{})
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(9))
		c.Locals("user_role", "teacher")
		return c.Next()
	})
	submissionHandler.Register(app.Group("/api/v1/assignments"), func(c *fiber.Ctx) error { return c.Next() })

	return app
}

func TestSubmissionListP95LatencyBelow250ms(t *testing.T) {
	app := setupSubmissionListApp(t)

	runs := 40
	durations := make([]time.Duration, 0, runs)

	for i := 0; i < runs; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/assignments/1/submissions", nil)
		start := time.Now()
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	index := int(math.Ceil(0.95*float64(len(durations)))) - 1
	if index < 0 {
		index = 0
	}
	p95 := durations[index]

	require.LessOrEqual(t, p95, 250*time.Millisecond)
}
