package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/openlearn/lms-api/internal/models"
)

// QuizRepository exposes persistence helpers for quizzes and their questions.
type QuizRepository interface {
	Create(ctx context.Context, quiz *models.Quiz) error
	GetByID(ctx context.Context, id uint) (models.Quiz, error)
	GetByAssignmentID(ctx context.Context, assignmentID uint) (models.Quiz, error)
	Update(ctx context.Context, quiz *models.Quiz) error
}

// NewQuizRepository constructs a quiz repository.
func NewQuizRepository(db *gorm.DB) QuizRepository {
	return &quizRepository{db: db}
}

type quizRepository struct {
	db *gorm.DB
}

// Create persists the quiz together with its questions and options in one
// transaction; GORM cascades the associations.
func (r *quizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	return r.db.WithContext(ctx).Create(quiz).Error
}

func (r *quizRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Quiz{}).
		Preload("Assignment").
		Preload("Questions", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		Preload("Questions.Options", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		})
}

func (r *quizRepository) GetByID(ctx context.Context, id uint) (models.Quiz, error) {
	var quiz models.Quiz
	if err := r.baseQuery(ctx).First(&quiz, id).Error; err != nil {
		return models.Quiz{}, err
	}

	return quiz, nil
}

func (r *quizRepository) GetByAssignmentID(ctx context.Context, assignmentID uint) (models.Quiz, error) {
	var quiz models.Quiz
	if err := r.baseQuery(ctx).Where("assignment_id = ?", assignmentID).First(&quiz).Error; err != nil {
		return models.Quiz{}, err
	}

	return quiz, nil
}

func (r *quizRepository) Update(ctx context.Context, quiz *models.Quiz) error {
	return r.db.WithContext(ctx).Save(quiz).Error
}
