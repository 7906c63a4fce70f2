package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/openlearn/lms-api/internal/authz"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/internal/observability"
	"github.com/openlearn/lms-api/internal/repository"
)

// ErrQuizNotFound indicates no quiz is attached to the assignment.
var ErrQuizNotFound = errors.New("quiz not found")

// ErrQuizResultNotFound indicates the quiz attempt cannot be located.
var ErrQuizResultNotFound = errors.New("quiz result not found")

// ErrQuizTimeExpired indicates the answers arrived after the time limit.
var ErrQuizTimeExpired = errors.New("quiz time limit expired")

// quizSession is the transient per-attempt state kept in Redis between start
// and submit. The seed pins the question order shown to the user.
type quizSession struct {
	StartedAt time.Time `json:"started_at"`
	Seed      int64     `json:"seed"`
}

// timeLimitGrace absorbs client clock skew and network latency before a
// late submit is rejected.
const timeLimitGrace = 30 * time.Second

// QuizService runs the quiz lifecycle: start, answer intake, scoring, results.
type QuizService interface {
	Start(ctx context.Context, actor authz.Actor, assignmentID uint) (dto.QuizStartResponse, error)
	Submit(ctx context.Context, actor authz.Actor, assignmentID uint, payload dto.QuizSubmitRequest) (dto.QuizResultResponse, error)
	GetResult(ctx context.Context, actor authz.Actor, id uint) (dto.QuizResultResponse, error)
	GetLatestResult(ctx context.Context, actor authz.Actor, assignmentID, userID uint) (dto.QuizResultResponse, error)
}

// QuizConfig carries the quiz session knobs.
type QuizConfig struct {
	SessionTTL time.Duration
}

type quizService struct {
	quizzes      repository.QuizRepository
	attempts     repository.QuizSubmissionRepository
	assignments  repository.AssignmentRepository
	redis        *redis.Client
	activity     ActivityRecorder
	notification NotificationService
	validator    *validator.Validate
	logger       zerolog.Logger
	tracer       trace.Tracer
	config       QuizConfig
	now          func() time.Time
	newSeed      func() int64
}

// NewQuizService constructs the quiz service.
func NewQuizService(
	quizRepo repository.QuizRepository,
	attemptRepo repository.QuizSubmissionRepository,
	assignmentRepo repository.AssignmentRepository,
	redisClient *redis.Client,
	activity ActivityRecorder,
	notification NotificationService,
	validate *validator.Validate,
	logger zerolog.Logger,
	cfg QuizConfig,
) QuizService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 4 * time.Hour
	}

	return &quizService{
		quizzes:      quizRepo,
		attempts:     attemptRepo,
		assignments:  assignmentRepo,
		redis:        redisClient,
		activity:     activity,
		notification: notification,
		validator:    validate,
		logger:       logger.With().Str("component", "quiz_service").Logger(),
		tracer:       otel.Tracer("github.com/openlearn/lms-api/internal/service/quiz"),
		config:       cfg,
		now:          time.Now,
		newSeed:      func() int64 { return time.Now().UnixNano() },
	}
}

func (s *quizService) Start(ctx context.Context, actor authz.Actor, assignmentID uint) (dto.QuizStartResponse, error) {
	ctx, span := s.tracer.Start(ctx, "quiz.start", trace.WithAttributes(
		attribute.Int64("quiz.assignment_id", int64(assignmentID)),
		attribute.Int64("quiz.user_id", int64(actor.ID)),
	))
	defer span.End()

	quiz, _, err := s.admittableQuiz(ctx, actor, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.QuizStartResponse{}, err
	}

	attempts, err := s.attempts.CountAttempts(ctx, quiz.ID, actor.ID)
	if err != nil {
		return dto.QuizStartResponse{}, err
	}
	if quiz.MaxAttempts > 0 && attempts >= int64(quiz.MaxAttempts) {
		observability.QuizAttempts().WithLabelValues("rejected").Inc()
		return dto.QuizStartResponse{}, ErrAttemptLimitReached
	}

	session, err := s.loadOrCreateSession(ctx, quiz.ID, actor.ID)
	if err != nil {
		return dto.QuizStartResponse{}, err
	}

	questions := s.presentQuestions(quiz, session.Seed)
	span.SetAttributes(attribute.Int("quiz.question_count", len(questions)))

	return dto.QuizStartResponse{
		QuizID:        quiz.ID,
		AssignmentID:  quiz.AssignmentID,
		Attempt:       int(attempts) + 1,
		TimeLimitSecs: quiz.TimeLimitSecs,
		MaxScore:      quiz.MaxScore(),
		StartedAt:     session.StartedAt,
		Questions:     questions,
	}, nil
}

func (s *quizService) Submit(ctx context.Context, actor authz.Actor, assignmentID uint, payload dto.QuizSubmitRequest) (dto.QuizResultResponse, error) {
	ctx, span := s.tracer.Start(ctx, "quiz.submit", trace.WithAttributes(
		attribute.Int64("quiz.assignment_id", int64(assignmentID)),
		attribute.Int64("quiz.user_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		return dto.QuizResultResponse{}, err
	}

	quiz, _, err := s.admittableQuiz(ctx, actor, assignmentID)
	if err != nil {
		span.RecordError(err)
		return dto.QuizResultResponse{}, err
	}

	submittedAt := s.now()
	timeTaken := payload.TimeTakenSecs
	if session, ok := s.loadSession(ctx, quiz.ID, actor.ID); ok {
		elapsed := submittedAt.Sub(session.StartedAt)
		timeTaken = int(elapsed.Seconds())
		if quiz.TimeLimitSecs > 0 && elapsed > time.Duration(quiz.TimeLimitSecs)*time.Second+timeLimitGrace {
			// The attempt is forfeited, not consumed. Drop the session so the
			// next Start opens a fresh timer instead of replaying this one.
			s.clearSession(ctx, quiz.ID, actor.ID)
			observability.QuizAttempts().WithLabelValues("expired").Inc()
			return dto.QuizResultResponse{}, ErrQuizTimeExpired
		}
	}

	submission := s.score(quiz, actor.ID, payload)
	submission.SubmittedAt = submittedAt
	submission.TimeTakenSecs = timeTaken

	if err := s.attempts.CreateWithAttemptLimit(ctx, &submission, quiz.MaxAttempts); err != nil {
		if errors.Is(err, repository.ErrAttemptLimitExceeded) {
			observability.QuizAttempts().WithLabelValues("rejected").Inc()
			return dto.QuizResultResponse{}, ErrAttemptLimitReached
		}
		return dto.QuizResultResponse{}, err
	}

	s.clearSession(ctx, quiz.ID, actor.ID)
	observability.QuizAttempts().WithLabelValues("completed").Inc()
	span.SetAttributes(
		attribute.Int("quiz.attempt", submission.Attempt),
		attribute.Float64("quiz.score", submission.Score),
	)

	if s.activity != nil {
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     models.ActivityActionQuizSubmitted,
			EntityType: "quiz_submission",
			EntityID:   &submission.ID,
			Metadata: map[string]interface{}{
				"quiz_id":       quiz.ID,
				"assignment_id": quiz.AssignmentID,
				"score":         submission.Score,
				"max_score":     submission.MaxScore,
				"attempt":       submission.Attempt,
			},
		})
	}

	if s.notification != nil {
		message := fmt.Sprintf("You scored %.1f of %.1f on the quiz.", submission.Score, submission.MaxScore)
		if _, err := s.notification.Notify(ctx, actor.ID, models.NotificationKindQuizCompleted, "Quiz completed", message); err != nil {
			s.logger.Warn().Err(err).Uint("quiz_submission_id", submission.ID).Msg("failed to notify quiz result")
		}
	}

	reveal := quiz.ShowCorrectAnswers || actor.Role != models.RoleStudent
	return dto.NewQuizResultResponse(submission, quiz, reveal), nil
}

func (s *quizService) GetResult(ctx context.Context, actor authz.Actor, id uint) (dto.QuizResultResponse, error) {
	submission, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResultResponse{}, ErrQuizResultNotFound
		}
		return dto.QuizResultResponse{}, err
	}

	return s.resultResponse(ctx, actor, submission)
}

func (s *quizService) GetLatestResult(ctx context.Context, actor authz.Actor, assignmentID, userID uint) (dto.QuizResultResponse, error) {
	if userID == 0 {
		userID = actor.ID
	}

	quiz, err := s.quizzes.GetByAssignmentID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResultResponse{}, ErrQuizNotFound
		}
		return dto.QuizResultResponse{}, err
	}

	submission, err := s.attempts.GetLatest(ctx, quiz.ID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResultResponse{}, ErrQuizResultNotFound
		}
		return dto.QuizResultResponse{}, err
	}

	return s.resultResponse(ctx, actor, submission)
}

func (s *quizService) resultResponse(ctx context.Context, actor authz.Actor, submission models.QuizSubmission) (dto.QuizResultResponse, error) {
	quiz, err := s.quizzes.GetByID(ctx, submission.QuizID)
	if err != nil {
		return dto.QuizResultResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, quiz.AssignmentID)
	if err != nil {
		return dto.QuizResultResponse{}, err
	}

	if err := authz.Authorize(actor, authz.ActionSubmissionView, authz.Resource{
		OwnerID:   submission.UserID,
		TeacherID: assignment.TeacherID,
	}); err != nil {
		return dto.QuizResultResponse{}, err
	}

	reveal := quiz.ShowCorrectAnswers || actor.Role != models.RoleStudent
	return dto.NewQuizResultResponse(submission, quiz, reveal), nil
}

// score grades the payload against the canonical question set. Correctness is
// decided by question identity, never by presentation order, so shuffling
// cannot change a result. Every question yields an answer row; unanswered
// questions earn zero points.
func (s *quizService) score(quiz models.Quiz, userID uint, payload dto.QuizSubmitRequest) models.QuizSubmission {
	answersByQuestion := make(map[uint]dto.QuizAnswerRequest, len(payload.Answers))
	for _, answer := range payload.Answers {
		answersByQuestion[answer.QuestionID] = answer
	}

	submission := models.QuizSubmission{
		QuizID:   quiz.ID,
		UserID:   userID,
		MaxScore: quiz.MaxScore(),
	}

	for _, question := range quiz.Questions {
		row := models.QuizAnswer{QuestionID: question.ID}

		if given, ok := answersByQuestion[question.ID]; ok {
			row.SelectedOptionID = given.SelectedOptionID
			row.TextAnswer = given.TextAnswer
			if s.isCorrect(question, given) {
				row.IsCorrect = true
				row.PointsEarned = question.Points
				submission.Score += question.Points
			}
		}

		submission.Answers = append(submission.Answers, row)
	}

	return submission
}

func (s *quizService) isCorrect(question models.QuizQuestion, given dto.QuizAnswerRequest) bool {
	correct := question.CorrectOption()
	if correct == nil {
		return false
	}

	switch question.Type {
	case models.QuestionTypeText:
		expected := strings.ToLower(strings.TrimSpace(correct.Text))
		actual := strings.ToLower(strings.TrimSpace(given.TextAnswer))
		return expected != "" && expected == actual
	default:
		if given.SelectedOptionID == nil {
			return false
		}
		// The selected option must belong to this question.
		for _, option := range question.Options {
			if option.ID == *given.SelectedOptionID {
				return option.IsCorrect
			}
		}
		return false
	}
}

// presentQuestions orders questions for display. The session seed makes the
// shuffle stable across page reloads within one attempt.
func (s *quizService) presentQuestions(quiz models.Quiz, seed int64) []dto.QuizQuestionView {
	questions := make([]models.QuizQuestion, len(quiz.Questions))
	copy(questions, quiz.Questions)

	if quiz.ShuffleQuestions {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}

	views := make([]dto.QuizQuestionView, 0, len(questions))
	for _, question := range questions {
		views = append(views, dto.NewQuizQuestionView(question))
	}
	return views
}

func (s *quizService) admittableQuiz(ctx context.Context, actor authz.Actor, assignmentID uint) (models.Quiz, models.Assignment, error) {
	if err := authz.Authorize(actor, authz.ActionQuizTake, authz.Resource{}); err != nil {
		return models.Quiz{}, models.Assignment{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Quiz{}, models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Quiz{}, models.Assignment{}, err
	}

	if !assignment.Active {
		return models.Quiz{}, models.Assignment{}, ErrAssignmentInactive
	}
	if !assignment.AcceptsSubmissionAt(s.now()) {
		return models.Quiz{}, models.Assignment{}, ErrDeadlinePassed
	}

	quiz, err := s.quizzes.GetByAssignmentID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Quiz{}, models.Assignment{}, ErrQuizNotFound
		}
		return models.Quiz{}, models.Assignment{}, err
	}

	return quiz, assignment, nil
}

func quizSessionKey(quizID, userID uint) string {
	return fmt.Sprintf("quiz:session:%d:%d", quizID, userID)
}

func (s *quizService) loadOrCreateSession(ctx context.Context, quizID, userID uint) (quizSession, error) {
	if session, ok := s.loadSession(ctx, quizID, userID); ok {
		return session, nil
	}

	session := quizSession{StartedAt: s.now().UTC(), Seed: s.newSeed()}
	if s.redis == nil {
		return session, nil
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return quizSession{}, err
	}
	if err := s.redis.Set(ctx, quizSessionKey(quizID, userID), payload, s.config.SessionTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist quiz session")
	}

	return session, nil
}

func (s *quizService) loadSession(ctx context.Context, quizID, userID uint) (quizSession, bool) {
	if s.redis == nil {
		return quizSession{}, false
	}

	raw, err := s.redis.Get(ctx, quizSessionKey(quizID, userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("quiz session lookup failed")
		}
		return quizSession{}, false
	}

	var session quizSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return quizSession{}, false
	}
	return session, true
}

func (s *quizService) clearSession(ctx context.Context, quizID, userID uint) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, quizSessionKey(quizID, userID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear quiz session")
	}
}
