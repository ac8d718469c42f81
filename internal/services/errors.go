package services

import (
	"errors"
	"fmt"

	apierrors "github.com/yukikurage/project-allocation-api/internal/errors"
	"github.com/yukikurage/project-allocation-api/internal/repository"
	"gorm.io/gorm"
)

// Domain errors returned by the engine services.
var (
	ErrNotAuthorized = apierrors.New(apierrors.KindNotAuthorized, "NOT_AUTHORIZED", "not authorized for this operation")
	ErrNotLeader     = apierrors.New(apierrors.KindNotAuthorized, "NOT_LEADER", "only the group leader can do this")
	ErrNotForYou     = apierrors.New(apierrors.KindNotAuthorized, "NOT_FOR_YOU", "invitation is addressed to another user")
	ErrNotMember     = apierrors.New(apierrors.KindNotAuthorized, "NOT_MEMBER", "not an active member of this group")

	ErrGroupNotFound      = apierrors.New(apierrors.KindNotFound, "GROUP_NOT_FOUND", "group not found")
	ErrInvitationNotFound = apierrors.New(apierrors.KindNotFound, "INVITATION_NOT_FOUND", "invitation not found")
	ErrInviteeNotFound    = apierrors.New(apierrors.KindNotFound, "INVITEE_NOT_FOUND", "invitee not found")
	ErrMemberNotFound     = apierrors.New(apierrors.KindNotFound, "MEMBER_NOT_FOUND", "student is not an active member of this group")
	ErrProjectNotFound    = apierrors.New(apierrors.KindNotFound, "PROJECT_NOT_FOUND", "project not found")
	ErrFacultyNotFound    = apierrors.New(apierrors.KindNotFound, "FACULTY_NOT_FOUND", "faculty not found")

	ErrGroupNotOpen             = apierrors.New(apierrors.KindInvalidState, "GROUP_NOT_OPEN", "group is no longer accepting members")
	ErrInvalidGroupState        = apierrors.New(apierrors.KindInvalidState, "INVALID_GROUP_STATE", "operation not allowed in the group's current state")
	ErrAlreadyMember            = apierrors.New(apierrors.KindInvalidState, "ALREADY_MEMBER", "student is already in a group this semester")
	ErrDuplicatePending         = apierrors.New(apierrors.KindInvalidState, "DUPLICATE_PENDING", "a pending invitation already exists for this student")
	ErrAlreadyResolved          = apierrors.New(apierrors.KindInvalidState, "ALREADY_RESOLVED", "already resolved")
	ErrCannotRemoveLeader       = apierrors.New(apierrors.KindInvalidState, "CANNOT_REMOVE_LEADER", "the leader cannot be removed from the group")
	ErrProjectAlreadyRegistered = apierrors.New(apierrors.KindInvalidState, "PROJECT_ALREADY_REGISTERED", "group already has a registered project")
	ErrNotFinalized             = apierrors.New(apierrors.KindInvalidState, "NOT_FINALIZED", "group must be finalized first")
	ErrNotCurrentPreference     = apierrors.New(apierrors.KindInvalidState, "NOT_CURRENT_PREFERENCE", "project is not awaiting your decision")
	ErrCascadeInProgress        = apierrors.New(apierrors.KindInvalidState, "CASCADE_IN_PROGRESS", "allocation cascade has not been exhausted")
	ErrConflict                 = apierrors.New(apierrors.KindInvalidState, "CONFLICT", "changed concurrently, reload and retry")

	ErrGroupFull    = apierrors.New(apierrors.KindCapacityExceeded, "GROUP_FULL", "group is full")
	ErrBelowMinimum = apierrors.New(apierrors.KindCapacityExceeded, "BELOW_MINIMUM", "group has fewer members than required")

	ErrInvalidGroupName       = apierrors.New(apierrors.KindValidation, "INVALID_GROUP_NAME", "group name is required and must be at most 100 characters")
	ErrInvalidSemester        = apierrors.New(apierrors.KindValidation, "INVALID_SEMESTER", "semester must be a positive number")
	ErrInvalidAcademicYear    = apierrors.New(apierrors.KindValidation, "INVALID_ACADEMIC_YEAR", "academic year is required")
	ErrInvalidInvitee         = apierrors.New(apierrors.KindValidation, "INVALID_INVITEE", "invitee must be another student")
	ErrInvalidRole            = apierrors.New(apierrors.KindValidation, "INVALID_ROLE", "invitations can only propose the member role")
	ErrInvalidDecision        = apierrors.New(apierrors.KindValidation, "INVALID_DECISION", "decision must be accept or reject")
	ErrInvalidTitle           = apierrors.New(apierrors.KindValidation, "INVALID_TITLE", "project title is required and must be at most 255 characters")
	ErrInvalidPreferenceCount = apierrors.New(apierrors.KindValidation, "INVALID_PREFERENCE_COUNT", "preference list has the wrong length or repeats a faculty member")
	ErrInvalidFaculty         = apierrors.New(apierrors.KindValidation, "INVALID_FACULTY", "every preference must be a faculty member")
	ErrInvalidStatus          = apierrors.New(apierrors.KindValidation, "INVALID_STATUS", "unknown allocation status")
	ErrInvalidDuration        = apierrors.New(apierrors.KindValidation, "INVALID_DURATION", "duration must be positive")
)

// notFound maps a missing row to target and wraps any other failure.
func notFound(err error, target error, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// conflict maps a lost optimistic update to target and wraps any other failure.
func conflict(err error, target error, action string) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return target
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// found reports whether a lookup returned a row. Errors other than a missing
// row are returned unchanged.
func found(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}
