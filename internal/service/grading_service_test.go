package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/openlearn/lms-api/internal/authz"
	"github.com/openlearn/lms-api/internal/dto"
	"github.com/openlearn/lms-api/internal/models"
	"github.com/openlearn/lms-api/pkg/ai"
)

type stubReviewer struct {
	input  ai.ReviewInput
	result ai.ReviewResult
	err    error
}

func (s *stubReviewer) Review(ctx context.Context, input ai.ReviewInput) (ai.ReviewResult, error) {
	s.input = input
	return s.result, s.err
}

func gradableSubmission(t *testing.T) models.Submission {
	t.Helper()
	autoScore := 50.0
	results, err := json.Marshal([]models.TestCaseResult{
		{Index: 0, Input: "1", Expected: "1", Actual: "1", Passed: true, Score: 50},
		{Index: 1, Input: "2", Expected: "2", Actual: "3", Passed: false},
	})
	require.NoError(t, err)
	return models.Submission{
		ID:            1,
		AssignmentID:  1,
		UserID:        7,
		Attempt:       1,
		Content:       "print(input())",
		Score:         &autoScore,
		TestResults:   datatypes.JSON(results),
		GradingStatus: models.GradingStatusDone,
		Assignment:    codeAssignment(t, 3),
	}
}

func newGradingService(t *testing.T, repo *fakeSubmissionRepo, reviewer ai.Reviewer) GradingService {
	t.Helper()
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewGradingService(repo, reviewer, nil, nil, validate, testLogger())
}

func TestGradeOverridesAutoScoreKeepsTestResults(t *testing.T) {
	repo := newFakeSubmissionRepo()
	repo.submissions = append(repo.submissions, gradableSubmission(t))
	svc := newGradingService(t, repo, nil)

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	result, err := svc.Grade(context.Background(), teacher, 1, dto.GradeRequest{Score: 80, Feedback: "Good effort."})
	require.NoError(t, err)
	require.NotNil(t, result.Score)
	require.Equal(t, 80.0, *result.Score)
	require.Equal(t, "Good effort.", result.Feedback)
	require.NotNil(t, result.GradedBy)
	require.Equal(t, uint(9), *result.GradedBy)

	// The auto-grade run evidence survives the manual override.
	require.Len(t, result.TestResults, 2)
	require.True(t, result.TestResults[0].Passed)

	require.Equal(t, 1, repo.historyCalls)
	require.Equal(t, 80.0, repo.history[0].Score)
	require.Equal(t, uint(9), repo.history[0].GradedBy)
}

func TestGradeRejectsScoreAboveMax(t *testing.T) {
	repo := newFakeSubmissionRepo()
	repo.submissions = append(repo.submissions, gradableSubmission(t))
	svc := newGradingService(t, repo, nil)

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	_, err := svc.Grade(context.Background(), teacher, 1, dto.GradeRequest{Score: 101})
	require.ErrorIs(t, err, ErrScoreExceedsMax)
	require.Zero(t, repo.updateCalls)
}

func TestGradeRejectsWhenAssignmentMaxScoreUnset(t *testing.T) {
	repo := newFakeSubmissionRepo()
	submission := gradableSubmission(t)
	submission.Assignment.MaxScore = 0
	repo.submissions = append(repo.submissions, submission)
	svc := newGradingService(t, repo, nil)

	// A zero max score is corrupt data; nothing above it may be granted.
	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	_, err := svc.Grade(context.Background(), teacher, 1, dto.GradeRequest{Score: 10})
	require.ErrorIs(t, err, ErrScoreExceedsMax)
	require.Zero(t, repo.updateCalls)
}

func TestGradeIsIdempotentForRepeatedRequest(t *testing.T) {
	repo := newFakeSubmissionRepo()
	repo.submissions = append(repo.submissions, gradableSubmission(t))
	svc := newGradingService(t, repo, nil)
	gradingSvc := svc.(*gradingService)

	first := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	gradingSvc.now = func() time.Time { return first }

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	payload := dto.GradeRequest{Score: 80, Feedback: "Good effort."}

	_, err := svc.Grade(context.Background(), teacher, 1, payload)
	require.NoError(t, err)

	// The identical grade again refreshes graded_at but appends no
	// history row.
	repeat := first.Add(time.Hour)
	gradingSvc.now = func() time.Time { return repeat }
	result, err := svc.Grade(context.Background(), teacher, 1, payload)
	require.NoError(t, err)
	require.Equal(t, 80.0, *result.Score)
	require.NotNil(t, result.GradedAt)
	require.True(t, result.GradedAt.Equal(repeat))
	require.Equal(t, 2, repo.updateCalls)
	require.Equal(t, 1, repo.historyCalls)
}

func TestGradeAppendsHistoryOnRegrade(t *testing.T) {
	repo := newFakeSubmissionRepo()
	repo.submissions = append(repo.submissions, gradableSubmission(t))
	svc := newGradingService(t, repo, nil)

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	_, err := svc.Grade(context.Background(), teacher, 1, dto.GradeRequest{Score: 80, Feedback: "Good effort."})
	require.NoError(t, err)

	result, err := svc.Grade(context.Background(), teacher, 1, dto.GradeRequest{Score: 90, Feedback: "Even better on review."})
	require.NoError(t, err)
	require.Equal(t, 90.0, *result.Score)
	require.Equal(t, 2, repo.historyCalls)
	require.Equal(t, 80.0, repo.history[0].Score)
	require.Equal(t, 90.0, repo.history[1].Score)
}

func TestGradeDeniesForeignTeacherAndStudents(t *testing.T) {
	repo := newFakeSubmissionRepo()
	repo.submissions = append(repo.submissions, gradableSubmission(t))
	svc := newGradingService(t, repo, nil)

	otherTeacher := authz.Actor{ID: 4, Role: models.RoleTeacher}
	_, err := svc.Grade(context.Background(), otherTeacher, 1, dto.GradeRequest{Score: 80})
	require.ErrorIs(t, err, authz.ErrPermissionDenied)

	student := authz.Actor{ID: 7, Role: models.RoleStudent}
	_, err = svc.Grade(context.Background(), student, 1, dto.GradeRequest{Score: 100})
	require.ErrorIs(t, err, authz.ErrPermissionDenied)

	admin := authz.Actor{ID: 2, Role: models.RoleAdmin}
	_, err = svc.Grade(context.Background(), admin, 1, dto.GradeRequest{Score: 80})
	require.NoError(t, err)
}

func TestGradeRejectsMissingSubmission(t *testing.T) {
	svc := newGradingService(t, newFakeSubmissionRepo(), nil)

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	_, err := svc.Grade(context.Background(), teacher, 404, dto.GradeRequest{Score: 80})
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSuggestFeedbackSummarizesTestResults(t *testing.T) {
	repo := newFakeSubmissionRepo()
	repo.submissions = append(repo.submissions, gradableSubmission(t))
	reviewer := &stubReviewer{result: ai.ReviewResult{
		Feedback:  "Half the cases pass; check the second input path.",
		Strengths: []string{"clean structure"},
		Issues:    []string{"case 2 output"},
	}}
	svc := newGradingService(t, repo, reviewer)

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	suggestion, err := svc.SuggestFeedback(context.Background(), teacher, 1)
	require.NoError(t, err)
	require.Equal(t, "Half the cases pass; check the second input path.", suggestion.Feedback)
	require.Equal(t, []string{"clean structure"}, suggestion.Strengths)
	require.Equal(t, "1 of 2 test cases passed", reviewer.input.TestSummary)
	require.Equal(t, "Echo", reviewer.input.AssignmentTitle)
}

func TestSuggestFeedbackWithoutReviewer(t *testing.T) {
	repo := newFakeSubmissionRepo()
	repo.submissions = append(repo.submissions, gradableSubmission(t))
	svc := newGradingService(t, repo, nil)

	teacher := authz.Actor{ID: 9, Role: models.RoleTeacher}
	_, err := svc.SuggestFeedback(context.Background(), teacher, 1)
	require.ErrorIs(t, err, ErrReviewerUnavailable)
}
