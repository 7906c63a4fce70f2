package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/openlearn/lms-api/internal/authz"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/internal/repository"
)

func newAssignmentService(t *testing.T, assignmentRepo *fakeAssignmentRepo, quizRepo *fakeQuizRepo) AssignmentService {
	t.Helper()
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewAssignmentService(assignmentRepo, quizRepo, nil, validate, testLogger())
}

func codeCreateRequest() dto.AssignmentCreateRequest {
	return dto.AssignmentCreateRequest{
		LessonID: 1,
		Title:    "Echo",
		Kind:     "code",
		Language: "python",
		TestCases: []dto.TestCaseRequest{
			{Input: "1", ExpectedOutput: "1"},
		},
		MaxAttempts: 3,
		MaxScore:    100,
	}
}

func TestAssignmentCreateRequiresTestCasesForCode(t *testing.T) {
	svc := newAssignmentService(t, newFakeAssignmentRepo(), newFakeQuizRepo())
	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}

	payload := codeCreateRequest()
	payload.TestCases = nil
	_, err := svc.Create(context.Background(), teacher, payload)
	require.ErrorIs(t, err, ErrTestCasesRequired)

	created, err := svc.Create(context.Background(), teacher, codeCreateRequest())
	require.NoError(t, err)
	require.Equal(t, uint(9), created.TeacherID)
	require.True(t, created.Active)
	require.Len(t, created.TestCases, 1)
}

func TestAssignmentCreateDeniedForStudents(t *testing.T) {
	svc := newAssignmentService(t, newFakeAssignmentRepo(), newFakeQuizRepo())
	student := authz.Actor{ID: 7, Role: models.RoleStudent}

	_, err := svc.Create(context.Background(), student, codeCreateRequest())
	require.ErrorIs(t, err, authz.ErrPermissionDenied)
}

func TestAssignmentUpdateDeniedForForeignTeacher(t *testing.T) {
	repo := newFakeAssignmentRepo(codeAssignment(t, 3))
	svc := newAssignmentService(t, repo, newFakeQuizRepo())

	title := "Renamed"
	other := authz.Actor{ID: 4, Role: models.RoleTeacher}
	_, err := svc.Update(context.Background(), other, 1, dto.AssignmentUpdateRequest{Title: &title})
	require.ErrorIs(t, err, authz.ErrPermissionDenied)

	owner := authz.Actor{ID: 9, Role: models.RoleTeacher}
	updated, err := svc.Update(context.Background(), owner, 1, dto.AssignmentUpdateRequest{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
}

func TestAssignmentGetHidesTestCasesFromStudents(t *testing.T) {
	repo := newFakeAssignmentRepo(codeAssignment(t, 3))
	svc := newAssignmentService(t, repo, newFakeQuizRepo())

	student, err := svc.Get(context.Background(), authz.Actor{ID: 7, Role: models.RoleStudent}, 1)
	require.NoError(t, err)
	require.Empty(t, student.TestCases)

	teacher, err := svc.Get(context.Background(), authz.Actor{ID: 9, Role: models.RoleTeacher}, 1)
	require.NoError(t, err)
	require.Len(t, teacher.TestCases, 2)
}

func quizCreatePayload() dto.QuizCreateRequest {
	return dto.QuizCreateRequest{
		MaxAttempts: 2,
		Questions: []dto.QuizQuestionRequest{
			{
				Text: "2 + 2?", Type: "multiple_choice", Points: 10,
				Options: []dto.QuizOptionRequest{
					{Text: "3"},
					{Text: "4", IsCorrect: true},
				},
			},
			{
				Text: "The sky is blue.", Type: "true_false", Points: 5,
				Options: []dto.QuizOptionRequest{
					{Text: "True", IsCorrect: true},
					{Text: "False"},
				},
			},
			{Text: "Capital of France?", Type: "text", Points: 5, Answer: "Paris"},
		},
	}
}

func TestCreateQuizAttachesQuestionsAndSyncsMaxScore(t *testing.T) {
	assignment := quizAssignment()
	assignment.MaxScore = 100
	repo := newFakeAssignmentRepo(assignment)
	quizzes := newFakeQuizRepo()
	svc := newAssignmentService(t, repo, quizzes)

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	result, err := svc.CreateQuiz(context.Background(), teacher, 1, quizCreatePayload())
	require.NoError(t, err)
	require.Equal(t, 20.0, result.MaxScore)

	quiz, err := quizzes.GetByAssignmentID(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, quiz.Questions, 3)
	require.Equal(t, 2, quiz.Questions[2].Position)

	// The text question stores its expected answer as the single correct option.
	text := quiz.Questions[2]
	require.Equal(t, models.QuestionTypeText, text.Type)
	require.Len(t, text.Options, 1)
	require.True(t, text.Options[0].IsCorrect)
	require.Equal(t, "Paris", text.Options[0].Text)
}

func TestCreateQuizRejectsSecondQuiz(t *testing.T) {
	repo := newFakeAssignmentRepo(quizAssignment())
	quizzes := newFakeQuizRepo(models.Quiz{ID: 1, AssignmentID: 1})
	svc := newAssignmentService(t, repo, quizzes)

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	_, err := svc.CreateQuiz(context.Background(), teacher, 1, quizCreatePayload())
	require.ErrorIs(t, err, ErrQuizExists)
}

func TestCreateQuizRejectsNonQuizAssignment(t *testing.T) {
	repo := newFakeAssignmentRepo(codeAssignment(t, 3))
	svc := newAssignmentService(t, repo, newFakeQuizRepo())

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	_, err := svc.CreateQuiz(context.Background(), teacher, 1, quizCreatePayload())
	require.ErrorIs(t, err, ErrWrongSubmissionKind)
}

func TestCreateQuizValidatesQuestionStructure(t *testing.T) {
	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}

	cases := []struct {
		name     string
		question dto.QuizQuestionRequest
	}{
		{
			name:     "text question without answer",
			question: dto.QuizQuestionRequest{Text: "Capital?", Type: "text", Points: 5},
		},
		{
			name: "true/false with three options",
			question: dto.QuizQuestionRequest{
				Text: "Yes?", Type: "true_false", Points: 5,
				Options: []dto.QuizOptionRequest{
					{Text: "True", IsCorrect: true},
					{Text: "False"},
					{Text: "Maybe"},
				},
			},
		},
		{
			name: "multiple choice with one option",
			question: dto.QuizQuestionRequest{
				Text: "Pick", Type: "multiple_choice", Points: 5,
				Options: []dto.QuizOptionRequest{{Text: "Only", IsCorrect: true}},
			},
		},
		{
			name: "multiple choice without a correct option",
			question: dto.QuizQuestionRequest{
				Text: "Pick", Type: "multiple_choice", Points: 5,
				Options: []dto.QuizOptionRequest{
					{Text: "A"},
					{Text: "B"},
				},
			},
		},
		{
			name: "multiple choice with two correct options",
			question: dto.QuizQuestionRequest{
				Text: "Pick", Type: "multiple_choice", Points: 5,
				Options: []dto.QuizOptionRequest{
					{Text: "A", IsCorrect: true},
					{Text: "B", IsCorrect: true},
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newAssignmentService(t, newFakeAssignmentRepo(quizAssignment()), newFakeQuizRepo())
			payload := dto.QuizCreateRequest{Questions: []dto.QuizQuestionRequest{tc.question}}
			_, err := svc.CreateQuiz(context.Background(), teacher, 1, payload)
			require.ErrorIs(t, err, ErrQuestionInvalid)
		})
	}
}

func TestAssignmentDeleteMapsSubmissionConflict(t *testing.T) {
	repo := newFakeAssignmentRepo(codeAssignment(t, 3))
	repo.deleteErr = repository.ErrAssignmentHasSubmissions
	svc := newAssignmentService(t, repo, newFakeQuizRepo())

	owner := authz.Actor{ID: 9, Role: models.RoleTeacher}
	err := svc.Delete(context.Background(), owner, 1)
	require.ErrorIs(t, err, ErrAssignmentInUse)
}
