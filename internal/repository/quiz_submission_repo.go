package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openlearn/lms-api/internal/models"
)

// QuizSubmissionRepository persists scored quiz attempts.
type QuizSubmissionRepository interface {
	GetByID(ctx context.Context, id uint) (models.QuizSubmission, error)
	GetLatest(ctx context.Context, quizID, userID uint) (models.QuizSubmission, error)
	CountAttempts(ctx context.Context, quizID, userID uint) (int64, error)
	// CreateWithAttemptLimit persists the submission header and all of its
	// answers atomically, enforcing the attempt cap inside the transaction.
	CreateWithAttemptLimit(ctx context.Context, submission *models.QuizSubmission, maxAttempts int) error
}

// NewQuizSubmissionRepository constructs the repository.
func NewQuizSubmissionRepository(db *gorm.DB) QuizSubmissionRepository {
	return &quizSubmissionRepository{db: db}
}

type quizSubmissionRepository struct {
	db *gorm.DB
}

func (r *quizSubmissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.QuizSubmission{}).
		Preload("Answers")
}

func (r *quizSubmissionRepository) GetByID(ctx context.Context, id uint) (models.QuizSubmission, error) {
	var submission models.QuizSubmission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.QuizSubmission{}, err
	}

	return submission, nil
}

func (r *quizSubmissionRepository) GetLatest(ctx context.Context, quizID, userID uint) (models.QuizSubmission, error) {
	var submission models.QuizSubmission
	if err := r.baseQuery(ctx).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Order("id DESC").
		First(&submission).Error; err != nil {
		return models.QuizSubmission{}, err
	}

	return submission, nil
}

func (r *quizSubmissionRepository) CountAttempts(ctx context.Context, quizID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.QuizSubmission{}).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *quizSubmissionRepository) CreateWithAttemptLimit(ctx context.Context, submission *models.QuizSubmission, maxAttempts int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quiz models.Quiz
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&quiz, submission.QuizID).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.QuizSubmission{}).
			Where("quiz_id = ?", submission.QuizID).
			Where("user_id = ?", submission.UserID).
			Count(&count).Error; err != nil {
			return err
		}

		if maxAttempts > 0 && count >= int64(maxAttempts) {
			return ErrAttemptLimitExceeded
		}

		submission.Attempt = int(count) + 1
		return tx.Create(submission).Error
	})
}
