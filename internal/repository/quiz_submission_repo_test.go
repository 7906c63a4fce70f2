package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openlearn/lms-api/internal/models"
)

func seedQuiz(t *testing.T, db *gorm.DB, maxAttempts int) models.Quiz {
	t.Helper()
	assignment := seedAssignment(t, db, 0)
	quiz := models.Quiz{
		AssignmentID: assignment.ID,
		MaxAttempts:  maxAttempts,
		Questions: []models.QuizQuestion{
			{
				Text:     "2+2?",
				Type:     models.QuestionTypeMultipleChoice,
				Points:   5,
				Position: 0,
				Options: []models.QuizOption{
					{Text: "3", Position: 0},
					{Text: "4", IsCorrect: true, Position: 1},
				},
			},
			{Text: "Go is compiled.", Type: models.QuestionTypeTrueFalse, Points: 5, Position: 1, Options: []models.QuizOption{
				{Text: "True", IsCorrect: true, Position: 0},
				{Text: "False", Position: 1},
			}},
		},
	}
	quizRepo := NewQuizRepository(db)
	require.NoError(t, quizRepo.Create(context.Background(), &quiz))
	return quiz
}

func TestQuizSubmissionCreateWithAnswers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuizSubmissionRepository(db)
	quiz := seedQuiz(t, db, 2)

	optionID := quiz.Questions[0].Options[1].ID
	submission := models.QuizSubmission{
		QuizID:      quiz.ID,
		UserID:      11,
		Score:       5,
		MaxScore:    10,
		SubmittedAt: time.Now(),
		Answers: []models.QuizAnswer{
			{QuestionID: quiz.Questions[0].ID, SelectedOptionID: &optionID, IsCorrect: true, PointsEarned: 5},
			{QuestionID: quiz.Questions[1].ID},
		},
	}
	require.NoError(t, repo.CreateWithAttemptLimit(context.Background(), &submission, quiz.MaxAttempts))
	require.Equal(t, 1, submission.Attempt)

	loaded, err := repo.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Answers, 2)
}

func TestQuizSubmissionAttemptCap(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuizSubmissionRepository(db)
	quiz := seedQuiz(t, db, 1)

	ctx := context.Background()
	first := models.QuizSubmission{QuizID: quiz.ID, UserID: 4, SubmittedAt: time.Now()}
	require.NoError(t, repo.CreateWithAttemptLimit(ctx, &first, 1))

	second := models.QuizSubmission{QuizID: quiz.ID, UserID: 4, SubmittedAt: time.Now()}
	require.ErrorIs(t, repo.CreateWithAttemptLimit(ctx, &second, 1), ErrAttemptLimitExceeded)

	count, err := repo.CountAttempts(ctx, quiz.ID, 4)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestQuizGetByAssignmentIDOrdersQuestions(t *testing.T) {
	db := setupTestDB(t)
	quiz := seedQuiz(t, db, 0)

	quizRepo := NewQuizRepository(db)
	loaded, err := quizRepo.GetByAssignmentID(context.Background(), quiz.AssignmentID)
	require.NoError(t, err)
	require.Len(t, loaded.Questions, 2)
	require.Equal(t, "2+2?", loaded.Questions[0].Text)
	require.Len(t, loaded.Questions[0].Options, 2)
	require.Equal(t, "4", loaded.Questions[0].Options[1].Text)
}
