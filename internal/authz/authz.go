package authz

import (
	"errors"

	"github.com/openlearn/lms-api/internal/models"
)

// ErrPermissionDenied indicates the actor may not perform the action on the
// resource. Surfaced as 403 and logged as a security-relevant event.
var ErrPermissionDenied = errors.New("permission denied")

// Action names a capability the core checks before any mutating operation.
type Action string

const (
	ActionSubmissionCreate Action = "submission.create"
	ActionSubmissionView   Action = "submission.view"
	ActionSubmissionGrade  Action = "submission.grade"
	ActionQuizTake         Action = "quiz.take"
	ActionAssignmentManage Action = "assignment.manage"
)

// Actor is the authenticated identity performing a request. Identity and role
// come from the session provider; the core trusts them as given.
type Actor struct {
	ID   uint
	Role models.Role
}

// Resource describes the ownership facts relevant to a decision.
type Resource struct {
	OwnerID   uint // submission / quiz-attempt owner
	TeacherID uint // teacher owning the assignment
}

// Authorize is the single capability gate for the grading core. It replaces
// per-route role string comparisons.
func Authorize(actor Actor, action Action, resource Resource) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}

	switch action {
	case ActionSubmissionCreate, ActionQuizTake:
		if actor.Role == models.RoleStudent {
			return nil
		}
	case ActionSubmissionView:
		if actor.ID != 0 && actor.ID == resource.OwnerID {
			return nil
		}
		if actor.Role == models.RoleTeacher {
			return nil
		}
	case ActionSubmissionGrade, ActionAssignmentManage:
		if actor.Role == models.RoleTeacher && actor.ID == resource.TeacherID {
			return nil
		}
	}

	return ErrPermissionDenied
}
