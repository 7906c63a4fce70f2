package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openlearn/lms-api/internal/models"
)

// ErrAttemptLimitExceeded indicates the (assignment, user) pair has used up
// all permitted attempts.
var ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssignmentID  *uint
	UserID        *uint
	GradingStatus *models.GradingStatus
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetLatest(ctx context.Context, assignmentID, userID uint) (models.Submission, error)
	CountAttempts(ctx context.Context, assignmentID, userID uint) (int64, error)
	CreateWithAttemptLimit(ctx context.Context, submission *models.Submission, maxAttempts int) error
	Update(ctx context.Context, submission *models.Submission) error
	CreateHistory(ctx context.Context, history *models.SubmissionGradeHistory) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("User").
		Preload("History", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("graded_at DESC")
		})
}

// List returns submissions in insertion order, for attempt history display.
func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.GradingStatus != nil {
		query = query.Where("grading_status = ?", *filter.GradingStatus)
	}

	var submissions []models.Submission
	if err := query.Order("id ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

// GetLatest selects the submission with the maximum submitted-at timestamp.
func (r *submissionRepository) GetLatest(ctx context.Context, assignmentID, userID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("user_id = ?", userID).
		Order("submitted_at DESC").
		Order("id DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) CountAttempts(ctx context.Context, assignmentID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("assignment_id = ?", assignmentID).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

// CreateWithAttemptLimit makes the attempt-count check and the insert atomic.
// The assignment row is locked for the duration of the transaction so two
// concurrent submits for the same (assignment, user) serialize and the second
// observes the first's row.
func (r *submissionRepository) CreateWithAttemptLimit(ctx context.Context, submission *models.Submission, maxAttempts int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment models.Assignment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&assignment, submission.AssignmentID).Error; err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&models.Submission{}).
			Where("assignment_id = ?", submission.AssignmentID).
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

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) CreateHistory(ctx context.Context, history *models.SubmissionGradeHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}
