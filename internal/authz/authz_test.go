package authz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openlearn/lms-api/internal/models"
)

func TestAuthorizeAdminBypassesOwnership(t *testing.T) {
	actor := Actor{ID: 99, Role: models.RoleAdmin}
	require.NoError(t, Authorize(actor, ActionSubmissionGrade, Resource{TeacherID: 1}))
	require.NoError(t, Authorize(actor, ActionSubmissionView, Resource{OwnerID: 5}))
}

func TestAuthorizeStudentCapabilities(t *testing.T) {
	student := Actor{ID: 7, Role: models.RoleStudent}

	require.NoError(t, Authorize(student, ActionSubmissionCreate, Resource{}))
	require.NoError(t, Authorize(student, ActionQuizTake, Resource{}))
	require.NoError(t, Authorize(student, ActionSubmissionView, Resource{OwnerID: 7}))

	require.ErrorIs(t, Authorize(student, ActionSubmissionView, Resource{OwnerID: 8}), ErrPermissionDenied)
	require.ErrorIs(t, Authorize(student, ActionSubmissionGrade, Resource{TeacherID: 7}), ErrPermissionDenied)
	require.ErrorIs(t, Authorize(student, ActionAssignmentManage, Resource{}), ErrPermissionDenied)
}

func TestAuthorizeTeacherOwnsAssignment(t *testing.T) {
	teacher := Actor{ID: 3, Role: models.RoleTeacher}

	require.NoError(t, Authorize(teacher, ActionSubmissionGrade, Resource{TeacherID: 3}))
	require.ErrorIs(t, Authorize(teacher, ActionSubmissionGrade, Resource{TeacherID: 4}), ErrPermissionDenied)

	// Teachers may view any submission on the platform.
	require.NoError(t, Authorize(teacher, ActionSubmissionView, Resource{OwnerID: 12}))
}
