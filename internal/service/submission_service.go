package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/openlearn/lms-api/internal/authz"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/grader"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/internal/observability"
	"github.com/openlearn/lms-api/internal/repository"
	"github.com/openlearn/lms-api/pkg/filestore"
)

// ErrAssignmentNotFound indicates the assignment cannot be located.
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrSubmissionNotFound indicates the submission cannot be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrAssignmentInactive indicates the assignment no longer accepts work.
var ErrAssignmentInactive = errors.New("assignment is not accepting submissions")

// ErrDeadlinePassed indicates the due date has passed and late work is not allowed.
var ErrDeadlinePassed = errors.New("assignment deadline has passed")

// ErrAttemptLimitReached indicates the user exhausted the allowed attempts.
var ErrAttemptLimitReached = errors.New("attempt limit reached")

// ErrWrongSubmissionKind indicates the payload does not match the assignment kind.
var ErrWrongSubmissionKind = errors.New("submission does not match assignment kind")

// ErrEmptyContent indicates a text or code submission arrived without a body.
var ErrEmptyContent = errors.New("submission content is required")

// ErrFileRequired indicates a file-kind submission arrived without an upload.
var ErrFileRequired = errors.New("file is required")

// ErrFileTooLarge indicates the upload exceeded the configured limit.
var ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

// ErrFileTypeNotAllowed indicates the file extension is not permitted for the
// assignment kind.
var ErrFileTypeNotAllowed = errors.New("file type not allowed")

// Allowed upload extensions per assignment kind. Checked before any byte is
// persisted.
var (
	codeFileExtensions = map[string]struct{}{".py": {}, ".pl": {}, ".txt": {}, ".zip": {}}
	docFileExtensions  = map[string]struct{}{".pdf": {}, ".doc": {}, ".docx": {}, ".txt": {}}
)

// SubmissionService exposes submission intake and retrieval operations.
type SubmissionService interface {
	Submit(ctx context.Context, actor authz.Actor, assignmentID uint, payload dto.SubmissionCreateRequest, idempotencyKey string) (dto.SubmissionResponse, error)
	SubmitFile(ctx context.Context, actor authz.Actor, assignmentID uint, file *multipart.FileHeader, timeTakenSecs int, idempotencyKey string) (dto.SubmissionResponse, error)
	List(ctx context.Context, actor authz.Actor, assignmentID uint, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	Get(ctx context.Context, actor authz.Actor, id uint) (dto.SubmissionResponse, error)
	GetLatest(ctx context.Context, actor authz.Actor, assignmentID, userID uint) (dto.SubmissionResponse, error)
}

// SubmissionConfig carries the intake and grading knobs.
type SubmissionConfig struct {
	UploadMaxBytes int64
	CaseTimeout    time.Duration
	IdempotencyTTL time.Duration
}

type submissionService struct {
	submissions  repository.SubmissionRepository
	assignments  repository.AssignmentRepository
	grader       *grader.Grader
	files        filestore.Store
	redis        *redis.Client
	activity     ActivityRecorder
	notification NotificationService
	validator    *validator.Validate
	logger       zerolog.Logger
	tracer       trace.Tracer
	config       SubmissionConfig
	now          func() time.Time
}

// NewSubmissionService constructs the submission intake service.
func NewSubmissionService(
	submissionRepo repository.SubmissionRepository,
	assignmentRepo repository.AssignmentRepository,
	codeGrader *grader.Grader,
	files filestore.Store,
	redisClient *redis.Client,
	activity ActivityRecorder,
	notification NotificationService,
	validate *validator.Validate,
	logger zerolog.Logger,
	cfg SubmissionConfig,
) SubmissionService {
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 10 << 20
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}

	return &submissionService{
		submissions:  submissionRepo,
		assignments:  assignmentRepo,
		grader:       codeGrader,
		files:        files,
		redis:        redisClient,
		activity:     activity,
		notification: notification,
		validator:    validate,
		logger:       logger.With().Str("component", "submission_service").Logger(),
		tracer:       otel.Tracer("github.com/openlearn/lms-api/internal/service/submission"),
		config:       cfg,
		now:          time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, actor authz.Actor, assignmentID uint, payload dto.SubmissionCreateRequest, idempotencyKey string) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.create", trace.WithAttributes(
		attribute.Int64("submission.assignment_id", int64(assignmentID)),
		attribute.Int64("submission.user_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	if replay, ok, err := s.replayIdempotent(ctx, actor.ID, assignmentID, idempotencyKey); err != nil {
		return dto.SubmissionResponse{}, err
	} else if ok {
		span.SetAttributes(attribute.Bool("submission.idempotent_replay", true))
		return replay, nil
	}

	assignment, err := s.admittableAssignment(ctx, actor, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	switch assignment.Kind {
	case models.AssignmentKindCode, models.AssignmentKindEssay:
	case models.AssignmentKindQuiz, models.AssignmentKindFile:
		return dto.SubmissionResponse{}, ErrWrongSubmissionKind
	default:
		return dto.SubmissionResponse{}, ErrWrongSubmissionKind
	}

	content := payload.Content
	if strings.TrimSpace(content) == "" {
		observability.SubmissionsRejected().WithLabelValues("empty").Inc()
		return dto.SubmissionResponse{}, ErrEmptyContent
	}

	submission := models.Submission{
		AssignmentID:  assignment.ID,
		UserID:        actor.ID,
		Content:       content,
		SubmittedAt:   s.now(),
		TimeTakenSecs: payload.TimeTakenSecs,
		GradingStatus: models.GradingStatusPending,
	}

	// Code work is graded before the attempt is committed, so a sandbox
	// outage never consumes one of the user's attempts.
	if assignment.Kind == models.AssignmentKindCode {
		if err := s.autoGrade(ctx, &submission, assignment); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "auto_grade_failed")
			return dto.SubmissionResponse{}, err
		}
	}

	if err := s.commit(ctx, &submission, assignment, idempotencyKey); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	span.SetAttributes(attribute.Int("submission.attempt", submission.Attempt))
	submission.Assignment = assignment
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) SubmitFile(ctx context.Context, actor authz.Actor, assignmentID uint, file *multipart.FileHeader, timeTakenSecs int, idempotencyKey string) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.create_file", trace.WithAttributes(
		attribute.Int64("submission.assignment_id", int64(assignmentID)),
		attribute.Int64("submission.user_id", int64(actor.ID)),
	))
	defer span.End()

	if replay, ok, err := s.replayIdempotent(ctx, actor.ID, assignmentID, idempotencyKey); err != nil {
		return dto.SubmissionResponse{}, err
	} else if ok {
		span.SetAttributes(attribute.Bool("submission.idempotent_replay", true))
		return replay, nil
	}

	assignment, err := s.admittableAssignment(ctx, actor, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	var allowed map[string]struct{}
	switch assignment.Kind {
	case models.AssignmentKindCode:
		allowed = codeFileExtensions
	case models.AssignmentKindFile:
		allowed = docFileExtensions
	default:
		return dto.SubmissionResponse{}, ErrWrongSubmissionKind
	}

	if file == nil {
		observability.SubmissionsRejected().WithLabelValues("missing_file").Inc()
		return dto.SubmissionResponse{}, ErrFileRequired
	}

	// Check the attempt cap before any bytes hit the store so a rejected
	// attempt leaves nothing behind. The locked check at commit still
	// guards against a concurrent racer claiming the last slot.
	if assignment.MaxAttempts > 0 {
		attempts, err := s.submissions.CountAttempts(ctx, assignment.ID, actor.ID)
		if err != nil {
			span.RecordError(err)
			return dto.SubmissionResponse{}, err
		}
		if attempts >= int64(assignment.MaxAttempts) {
			observability.SubmissionsRejected().WithLabelValues("attempts").Inc()
			return dto.SubmissionResponse{}, ErrAttemptLimitReached
		}
	}

	payload, detected, err := s.readUpload(file, allowed)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}
	span.SetAttributes(
		attribute.String("submission.file_mime", detected),
		attribute.Int("submission.file_size", len(payload)),
	)

	submission := models.Submission{
		AssignmentID:  assignment.ID,
		UserID:        actor.ID,
		FileName:      filepath.Base(file.Filename),
		FileSize:      int64(len(payload)),
		FileMime:      detected,
		SubmittedAt:   s.now(),
		TimeTakenSecs: timeTakenSecs,
		GradingStatus: models.GradingStatusPending,
	}

	if assignment.Kind == models.AssignmentKindCode {
		submission.Content = string(payload)
		if err := s.autoGrade(ctx, &submission, assignment); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "auto_grade_failed")
			return dto.SubmissionResponse{}, err
		}
	}

	url, err := s.files.Save(ctx, submission.FileName, bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage_failed")
		return dto.SubmissionResponse{}, fmt.Errorf("store file: %w", err)
	}
	submission.FileURL = url

	if err := s.commit(ctx, &submission, assignment, idempotencyKey); err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	span.SetAttributes(attribute.Int("submission.attempt", submission.Attempt))
	submission.Assignment = assignment
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) List(ctx context.Context, actor authz.Actor, assignmentID uint, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}

	repoFilter := repository.SubmissionFilter{AssignmentID: &assignment.ID}
	if actor.Role == models.RoleStudent {
		// Students only ever see their own attempts.
		repoFilter.UserID = &actor.ID
	} else if filter.UserID != nil {
		repoFilter.UserID = filter.UserID
	}
	if filter.GradingStatus != nil {
		status, err := models.ParseGradingStatus(*filter.GradingStatus)
		if err != nil {
			return nil, err
		}
		repoFilter.GradingStatus = &status
	}

	submissions, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Get(ctx context.Context, actor authz.Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if err := authz.Authorize(actor, authz.ActionSubmissionView, authz.Resource{
		OwnerID:   submission.UserID,
		TeacherID: submission.Assignment.TeacherID,
	}); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) GetLatest(ctx context.Context, actor authz.Actor, assignmentID, userID uint) (dto.SubmissionResponse, error) {
	if userID == 0 {
		userID = actor.ID
	}

	submission, err := s.submissions.GetLatest(ctx, assignmentID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if err := authz.Authorize(actor, authz.ActionSubmissionView, authz.Resource{
		OwnerID:   submission.UserID,
		TeacherID: submission.Assignment.TeacherID,
	}); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission), nil
}

// admittableAssignment loads the assignment and applies the intake gates
// shared by every submission path.
func (s *submissionService) admittableAssignment(ctx context.Context, actor authz.Actor, assignmentID uint) (models.Assignment, error) {
	if err := authz.Authorize(actor, authz.ActionSubmissionCreate, authz.Resource{}); err != nil {
		return models.Assignment{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	if !assignment.Active {
		observability.SubmissionsRejected().WithLabelValues("inactive").Inc()
		return models.Assignment{}, ErrAssignmentInactive
	}
	if !assignment.AcceptsSubmissionAt(s.now()) {
		observability.SubmissionsRejected().WithLabelValues("deadline").Inc()
		return models.Assignment{}, ErrDeadlinePassed
	}

	return assignment, nil
}

func (s *submissionService) autoGrade(ctx context.Context, submission *models.Submission, assignment models.Assignment) error {
	var testCases []models.TestCase
	if len(assignment.TestCases) > 0 {
		if err := json.Unmarshal(assignment.TestCases, &testCases); err != nil {
			return fmt.Errorf("decode test cases: %w", err)
		}
	}
	if len(testCases) == 0 {
		// Nothing to grade against; the teacher grades by hand.
		return nil
	}

	caseTimeout := s.config.CaseTimeout
	if assignment.TimeLimitSecs > 0 {
		caseTimeout = time.Duration(assignment.TimeLimitSecs) * time.Second
	}

	start := s.now()
	results, score, err := s.grader.Grade(ctx, submission.Content, assignment.Language, testCases, assignment.MaxScore, caseTimeout)
	observability.AutoGradeLatency().Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode test results: %w", err)
	}

	submission.Score = &score
	submission.TestResults = datatypes.JSON(encoded)
	submission.GradingStatus = models.GradingStatusDone
	gradedAt := s.now()
	submission.GradedAt = &gradedAt
	observability.GradingActions().WithLabelValues("auto").Inc()

	return nil
}

// commit atomically claims an attempt slot and persists the submission, then
// records the audit entry and idempotency marker.
func (s *submissionService) commit(ctx context.Context, submission *models.Submission, assignment models.Assignment, idempotencyKey string) error {
	if err := s.submissions.CreateWithAttemptLimit(ctx, submission, assignment.MaxAttempts); err != nil {
		if errors.Is(err, repository.ErrAttemptLimitExceeded) {
			observability.SubmissionsRejected().WithLabelValues("attempts").Inc()
			return ErrAttemptLimitReached
		}
		return err
	}

	observability.SubmissionsCreated().WithLabelValues(string(assignment.Kind)).Inc()
	s.rememberIdempotent(ctx, submission.UserID, assignment.ID, idempotencyKey, submission.ID)

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    submission.UserID,
			ActorRole:  models.RoleStudent,
			Action:     models.ActivityActionSubmissionCreated,
			EntityType: "submission",
			EntityID:   &submission.ID,
			Metadata: map[string]interface{}{
				"assignment_id": assignment.ID,
				"attempt":       submission.Attempt,
				"kind":          string(assignment.Kind),
			},
		})
	}

	if submission.IsGraded() && s.notification != nil {
		message := fmt.Sprintf("Your submission for %q scored %.1f of %.1f.", assignment.Title, *submission.Score, assignment.MaxScore)
		if _, err := s.notification.Notify(ctx, submission.UserID, models.NotificationKindSubmissionGraded, "Submission graded", message); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to notify auto-grade result")
		}
	}

	return nil
}

func (s *submissionService) readUpload(file *multipart.FileHeader, allowed map[string]struct{}) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, ok := allowed[ext]; !ok {
		observability.SubmissionsRejected().WithLabelValues("type").Inc()
		return nil, "", ErrFileTypeNotAllowed
	}
	if file.Size > s.config.UploadMaxBytes {
		observability.SubmissionsRejected().WithLabelValues("size").Inc()
		return nil, "", ErrFileTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return nil, "", err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.config.UploadMaxBytes+1)); err != nil {
		return nil, "", err
	}
	if int64(buf.Len()) > s.config.UploadMaxBytes {
		observability.SubmissionsRejected().WithLabelValues("size").Inc()
		return nil, "", ErrFileTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	return buf.Bytes(), detected.String(), nil
}

func idempotencyStorageKey(userID, assignmentID uint, key string) string {
	return fmt.Sprintf("idem:submission:%d:%d:%s", assignmentID, userID, key)
}

// replayIdempotent returns the previously accepted submission for a repeated
// idempotency key, so retried requests never burn an extra attempt.
func (s *submissionService) replayIdempotent(ctx context.Context, userID, assignmentID uint, key string) (dto.SubmissionResponse, bool, error) {
	if s.redis == nil || strings.TrimSpace(key) == "" {
		return dto.SubmissionResponse{}, false, nil
	}

	raw, err := s.redis.Get(ctx, idempotencyStorageKey(userID, assignmentID, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return dto.SubmissionResponse{}, false, nil
		}
		s.logger.Warn().Err(err).Msg("idempotency lookup failed")
		return dto.SubmissionResponse{}, false, nil
	}

	var submissionID uint
	if _, err := fmt.Sscanf(raw, "%d", &submissionID); err != nil {
		return dto.SubmissionResponse{}, false, nil
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, false, nil
		}
		return dto.SubmissionResponse{}, false, err
	}

	return dto.NewSubmissionResponse(submission), true, nil
}

func (s *submissionService) rememberIdempotent(ctx context.Context, userID, assignmentID uint, key string, submissionID uint) {
	if s.redis == nil || strings.TrimSpace(key) == "" {
		return
	}

	storageKey := idempotencyStorageKey(userID, assignmentID, key)
	if err := s.redis.Set(ctx, storageKey, fmt.Sprintf("%d", submissionID), s.config.IdempotencyTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", storageKey).Msg("failed to record idempotency key")
	}
}
