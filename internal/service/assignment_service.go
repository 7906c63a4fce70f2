package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/openlearn/lms-api/internal/authz"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/internal/repository"
)

// ErrAssignmentInUse indicates the assignment has submissions and cannot be deleted.
var ErrAssignmentInUse = errors.New("assignment has submissions")

// ErrTestCasesRequired indicates a code assignment arrived without test cases.
var ErrTestCasesRequired = errors.New("code assignments require test cases")

// ErrQuizExists indicates the assignment already carries a quiz.
var ErrQuizExists = errors.New("assignment already has a quiz")

// ErrQuestionInvalid indicates a quiz question fails its structural rules.
var ErrQuestionInvalid = errors.New("invalid quiz question")

// AssignmentService exposes assignment authoring operations.
type AssignmentService interface {
	List(ctx context.Context, actor authz.Actor, filter dto.AssignmentFilter) ([]dto.AssignmentResponse, dto.PaginationMeta, error)
	Get(ctx context.Context, actor authz.Actor, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, actor authz.Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, actor authz.Actor, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, actor authz.Actor, id uint) error
	CreateQuiz(ctx context.Context, actor authz.Actor, assignmentID uint, payload dto.QuizCreateRequest) (dto.AssignmentResponse, error)
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	quizzes     repository.QuizRepository
	activity    ActivityRecorder
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAssignmentService constructs the assignment authoring service.
func NewAssignmentService(
	assignmentRepo repository.AssignmentRepository,
	quizRepo repository.QuizRepository,
	activity ActivityRecorder,
	validate *validator.Validate,
	logger zerolog.Logger,
) AssignmentService {
	return &assignmentService{
		assignments: assignmentRepo,
		quizzes:     quizRepo,
		activity:    activity,
		validator:   validate,
		logger:      logger.With().Str("component", "assignment_service").Logger(),
		now:         time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context, actor authz.Actor, filter dto.AssignmentFilter) ([]dto.AssignmentResponse, dto.PaginationMeta, error) {
	repoFilter := repository.AssignmentFilter{
		LessonID: filter.LessonID,
		Search:   strings.TrimSpace(filter.Search),
		Sort:     filter.Sort,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if filter.Kind != nil {
		kind, err := models.ParseAssignmentKind(*filter.Kind)
		if err != nil {
			return nil, dto.PaginationMeta{}, err
		}
		repoFilter.Kind = &kind
	}

	assignments, total, err := s.assignments.List(ctx, repoFilter)
	if err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(filter.Page, 1),
		PageSize:   filter.PageSize,
		TotalItems: total,
	}
	if filter.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(filter.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	includeTestCases := actor.Role != models.RoleStudent
	return dto.NewAssignmentResponseSlice(assignments, includeTestCases), pagination, nil
}

func (s *assignmentService) Get(ctx context.Context, actor authz.Actor, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		return dto.AssignmentResponse{}, err
	}

	includeTestCases := actor.Role != models.RoleStudent
	return dto.NewAssignmentResponse(assignment, includeTestCases), nil
}

func (s *assignmentService) Create(ctx context.Context, actor authz.Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := authz.Authorize(actor, authz.ActionAssignmentManage, authz.Resource{TeacherID: actor.ID}); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	kind, err := models.ParseAssignmentKind(payload.Kind)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if kind == models.AssignmentKindCode && len(payload.TestCases) == 0 {
		return dto.AssignmentResponse{}, ErrTestCasesRequired
	}

	testCases, err := dto.MarshalTestCases(payload.TestCases)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		LessonID:      payload.LessonID,
		TeacherID:     actor.ID,
		Title:         strings.TrimSpace(payload.Title),
		Description:   payload.Description,
		Kind:          kind,
		Language:      strings.ToLower(strings.TrimSpace(payload.Language)),
		TestCases:     testCases,
		TimeLimitSecs: payload.TimeLimitSecs,
		MaxAttempts:   payload.MaxAttempts,
		DueDate:       payload.DueDate,
		MaxScore:      payload.MaxScore,
		AllowLate:     payload.AllowLate,
		Active:        true,
	}

	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.recordChange(ctx, actor, assignment.ID, "created")

	return dto.NewAssignmentResponse(assignment, true), nil
}

func (s *assignmentService) Update(ctx context.Context, actor authz.Actor, id uint, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.ownedAssignment(ctx, actor, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if payload.Title != nil {
		assignment.Title = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		assignment.Description = *payload.Description
	}
	if payload.Language != nil {
		assignment.Language = strings.ToLower(strings.TrimSpace(*payload.Language))
	}
	if payload.TestCases != nil {
		if assignment.Kind == models.AssignmentKindCode && len(*payload.TestCases) == 0 {
			return dto.AssignmentResponse{}, ErrTestCasesRequired
		}
		testCases, err := dto.MarshalTestCases(*payload.TestCases)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		assignment.TestCases = testCases
	}
	if payload.TimeLimitSecs != nil {
		assignment.TimeLimitSecs = *payload.TimeLimitSecs
	}
	if payload.MaxAttempts != nil {
		assignment.MaxAttempts = *payload.MaxAttempts
	}
	if payload.DueDate != nil {
		assignment.DueDate = payload.DueDate
	}
	if payload.MaxScore != nil {
		assignment.MaxScore = *payload.MaxScore
	}
	if payload.AllowLate != nil {
		assignment.AllowLate = *payload.AllowLate
	}
	if payload.Active != nil {
		assignment.Active = *payload.Active
	}

	if err := s.assignments.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.recordChange(ctx, actor, assignment.ID, "updated")

	return dto.NewAssignmentResponse(assignment, true), nil
}

func (s *assignmentService) Delete(ctx context.Context, actor authz.Actor, id uint) error {
	if _, err := s.ownedAssignment(ctx, actor, id); err != nil {
		return err
	}

	if err := s.assignments.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrAssignmentHasSubmissions) {
			return ErrAssignmentInUse
		}
		return err
	}

	s.recordChange(ctx, actor, id, "deleted")
	return nil
}

// CreateQuiz attaches a quiz to a quiz-kind assignment. Question positions
// follow payload order; text questions store their expected answer as a
// single correct option.
func (s *assignmentService) CreateQuiz(ctx context.Context, actor authz.Actor, assignmentID uint, payload dto.QuizCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.ownedAssignment(ctx, actor, assignmentID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if assignment.Kind != models.AssignmentKindQuiz {
		return dto.AssignmentResponse{}, ErrWrongSubmissionKind
	}

	if _, err := s.quizzes.GetByAssignmentID(ctx, assignmentID); err == nil {
		return dto.AssignmentResponse{}, ErrQuizExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.AssignmentResponse{}, err
	}

	quiz := models.Quiz{
		AssignmentID:       assignment.ID,
		TimeLimitSecs:      payload.TimeLimitSecs,
		MaxAttempts:        payload.MaxAttempts,
		ShuffleQuestions:   payload.ShuffleQuestions,
		ShowCorrectAnswers: payload.ShowCorrectAnswers,
	}

	for position, questionPayload := range payload.Questions {
		question, err := buildQuestion(questionPayload, position)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		quiz.Questions = append(quiz.Questions, question)
	}

	if err := s.quizzes.Create(ctx, &quiz); err != nil {
		return dto.AssignmentResponse{}, err
	}

	// Keep the assignment max score in sync with the question points.
	assignment.MaxScore = quiz.MaxScore()
	if err := s.assignments.Update(ctx, &assignment); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignment.ID).Msg("failed to sync assignment max score")
	}

	s.recordChange(ctx, actor, assignment.ID, "quiz_attached")

	return dto.NewAssignmentResponse(assignment, true), nil
}

func buildQuestion(payload dto.QuizQuestionRequest, position int) (models.QuizQuestion, error) {
	questionType, err := models.ParseQuestionType(payload.Type)
	if err != nil {
		return models.QuizQuestion{}, err
	}

	question := models.QuizQuestion{
		Text:     strings.TrimSpace(payload.Text),
		Type:     questionType,
		Points:   payload.Points,
		Position: position,
	}

	switch questionType {
	case models.QuestionTypeText:
		if strings.TrimSpace(payload.Answer) == "" {
			return models.QuizQuestion{}, ErrQuestionInvalid
		}
		question.Options = []models.QuizOption{{Text: strings.TrimSpace(payload.Answer), IsCorrect: true}}
	case models.QuestionTypeTrueFalse:
		if len(payload.Options) != 2 {
			return models.QuizQuestion{}, ErrQuestionInvalid
		}
		fallthrough
	default:
		if len(payload.Options) < 2 {
			return models.QuizQuestion{}, ErrQuestionInvalid
		}
		correct := 0
		for optionPosition, optionPayload := range payload.Options {
			if optionPayload.IsCorrect {
				correct++
			}
			question.Options = append(question.Options, models.QuizOption{
				Text:      strings.TrimSpace(optionPayload.Text),
				IsCorrect: optionPayload.IsCorrect,
				Position:  optionPosition,
			})
		}
		if correct != 1 {
			return models.QuizQuestion{}, ErrQuestionInvalid
		}
	}

	return question, nil
}

func (s *assignmentService) ownedAssignment(ctx context.Context, actor authz.Actor, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}

	if err := authz.Authorize(actor, authz.ActionAssignmentManage, authz.Resource{TeacherID: assignment.TeacherID}); err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (s *assignmentService) recordChange(ctx context.Context, actor authz.Actor, assignmentID uint, change string) {
	if s.activity == nil {
		return
	}
	_, _ = s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     models.ActivityActionAssignmentChanged,
		EntityType: "assignment",
		EntityID:   &assignmentID,
		Metadata:   map[string]interface{}{"change": change},
	})
}
