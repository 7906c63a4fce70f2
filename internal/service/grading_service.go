package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/openlearn/lms-api/internal/authz"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/internal/observability"
	"github.com/openlearn/lms-api/internal/repository"
	"github.com/openlearn/lms-api/pkg/ai"
)

// ErrScoreExceedsMax indicates a grading score surpasses the assignment max.
var ErrScoreExceedsMax = errors.New("score exceeds assignment max")

// ErrReviewerUnavailable indicates no AI reviewer is configured.
var ErrReviewerUnavailable = errors.New("reviewer unavailable")

// GradingService encapsulates manual grading workflows for teachers.
type GradingService interface {
	Grade(ctx context.Context, actor authz.Actor, submissionID uint, payload dto.GradeRequest) (dto.SubmissionResponse, error)
	SuggestFeedback(ctx context.Context, actor authz.Actor, submissionID uint) (dto.FeedbackSuggestionResponse, error)
}

type gradingService struct {
	submissions  repository.SubmissionRepository
	reviewer     ai.Reviewer
	activity     ActivityRecorder
	notification NotificationService
	validator    *validator.Validate
	logger       zerolog.Logger
	now          func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(
	submissionRepo repository.SubmissionRepository,
	reviewer ai.Reviewer,
	activity ActivityRecorder,
	notification NotificationService,
	validate *validator.Validate,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		submissions:  submissionRepo,
		reviewer:     reviewer,
		activity:     activity,
		notification: notification,
		validator:    validate,
		logger:       logger.With().Str("component", "grading_service").Logger(),
		now:          time.Now,
	}
}

// Grade records a manual score. A score supersedes any auto-grade but the
// recorded test results stay untouched, so the run evidence survives review.
func (s *gradingService) Grade(ctx context.Context, actor authz.Actor, submissionID uint, payload dto.GradeRequest) (dto.SubmissionResponse, error) {
	tracer := otel.Tracer("github.com/openlearn/lms-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.update")
	span.SetAttributes(
		attribute.Int64("grading.submission_id", int64(submissionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission_not_found")
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	if err := authz.Authorize(actor, authz.ActionSubmissionGrade, authz.Resource{
		OwnerID:   submission.UserID,
		TeacherID: submission.Assignment.TeacherID,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, err
	}

	if payload.Score > submission.Assignment.MaxScore+1e-9 {
		span.RecordError(ErrScoreExceedsMax)
		span.SetStatus(codes.Error, "score_exceeds_max")
		return dto.SubmissionResponse{}, ErrScoreExceedsMax
	}

	payloadFeedback := strings.TrimSpace(payload.Feedback)
	currentFeedback := strings.TrimSpace(submission.Feedback)
	currentScore := submission.Score

	isIdempotent := currentScore != nil && math.Abs(*currentScore-payload.Score) < 1e-6 && currentFeedback == payloadFeedback
	if isIdempotent && submission.GradedBy != nil && *submission.GradedBy == actor.ID {
		// Same grader, same grade: refresh the timestamp but skip the
		// history row so the audit trail records one entry per change.
		gradedAt := s.now()
		submission.GradedAt = &gradedAt
		if err := s.submissions.Update(ctx, &submission); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission_update_failed")
			return dto.SubmissionResponse{}, err
		}
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return dto.NewSubmissionResponse(submission), nil
	}

	score := payload.Score
	submission.Score = &score
	submission.Feedback = payloadFeedback
	submission.GradingStatus = models.GradingStatusDone
	submission.Graded = true
	gradedAt := s.now()
	submission.GradedAt = &gradedAt
	gradedBy := actor.ID
	submission.GradedBy = &gradedBy

	if err := s.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_update_failed")
		return dto.SubmissionResponse{}, err
	}

	history := models.SubmissionGradeHistory{
		SubmissionID: submission.ID,
		Score:        payload.Score,
		Feedback:     payloadFeedback,
		GradedBy:     actor.ID,
		GradedAt:     gradedAt,
	}
	if err := s.submissions.CreateHistory(ctx, &history); err != nil {
		s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to persist grading history")
		span.RecordError(err)
	}

	observability.GradingActions().WithLabelValues("manual").Inc()

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     models.ActivityActionSubmissionGraded,
			EntityType: "submission",
			EntityID:   &submission.ID,
			Metadata: map[string]interface{}{
				"submission_id": submission.ID,
				"student_id":    submission.UserID,
				"assignment_id": submission.AssignmentID,
				"score":         payload.Score,
			},
		})
	}

	if s.notification != nil {
		message := fmt.Sprintf("Your submission for %q was graded: %.1f of %.1f.", submission.Assignment.Title, payload.Score, submission.Assignment.MaxScore)
		if _, err := s.notification.Notify(ctx, submission.UserID, models.NotificationKindSubmissionGraded, "Submission graded", message); err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to notify grade")
		}
	}

	span.SetAttributes(attribute.Float64("grading.score", payload.Score))

	return dto.NewSubmissionResponse(submission), nil
}

// SuggestFeedback asks the AI reviewer to draft feedback wording. Advisory
// only: nothing is written to the submission.
func (s *gradingService) SuggestFeedback(ctx context.Context, actor authz.Actor, submissionID uint) (dto.FeedbackSuggestionResponse, error) {
	if s.reviewer == nil {
		return dto.FeedbackSuggestionResponse{}, ErrReviewerUnavailable
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FeedbackSuggestionResponse{}, ErrSubmissionNotFound
		}
		return dto.FeedbackSuggestionResponse{}, err
	}

	if err := authz.Authorize(actor, authz.ActionSubmissionGrade, authz.Resource{
		OwnerID:   submission.UserID,
		TeacherID: submission.Assignment.TeacherID,
	}); err != nil {
		return dto.FeedbackSuggestionResponse{}, err
	}

	result, err := s.reviewer.Review(ctx, ai.ReviewInput{
		AssignmentTitle: submission.Assignment.Title,
		Description:     submission.Assignment.Description,
		Kind:            string(submission.Assignment.Kind),
		Language:        submission.Assignment.Language,
		Content:         submission.Content,
		TestSummary:     summarizeTestResults(submission.TestResults),
		Score:           submission.Score,
		MaxScore:        submission.Assignment.MaxScore,
	})
	if err != nil {
		return dto.FeedbackSuggestionResponse{}, err
	}

	return dto.FeedbackSuggestionResponse{
		Feedback:  result.Feedback,
		Strengths: result.Strengths,
		Issues:    result.Issues,
	}, nil
}

func summarizeTestResults(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	var results []models.TestCaseResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return ""
	}

	passed := 0
	for _, result := range results {
		if result.Passed {
			passed++
		}
	}
	return fmt.Sprintf("%d of %d test cases passed", passed, len(results))
}
