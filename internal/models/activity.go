package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions recorded by the grading pipeline.
const (
	ActivityActionSubmissionCreated = "submission.created"
	ActivityActionSubmissionGraded  = "submission.graded"
	ActivityActionQuizSubmitted     = "quiz.submitted"
	ActivityActionAssignmentChanged = "assignment.changed"
)

// ActivityLog captures auditable events in the submission and grading lifecycle.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null" json:"actor_id"`
	ActorRole  Role              `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   *uint             `json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
