package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/utils"
)

// ErrVersionConflict is returned when a version-checked update finds that
// another writer changed the row first.
var ErrVersionConflict = errors.New("repository: version conflict")

// Store groups the repositories that share one database handle. A Store
// obtained inside Transaction is bound to that transaction.
type Store interface {
	Users() UserRepository
	Groups() GroupRepository
	Invitations() InvitationRepository
	Projects() ProjectRepository

	// WithContext returns a Store whose queries use ctx
	WithContext(ctx context.Context) Store

	// Transaction runs fn inside a database transaction
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user
	Create(user *models.User) error

	// FindByID finds a user by ID
	FindByID(id uint64) (*models.User, error)

	// FindByIDs finds all users with the given IDs
	FindByIDs(ids []uint64) ([]models.User, error)

	// FindByUsername finds a user by username
	FindByUsername(username string) (*models.User, error)
}

// GroupRepository defines the interface for group and membership data access
type GroupRepository interface {
	// Create creates a group together with its initial members
	Create(group *models.Group) error

	// FindByID finds a group with all of its member rows
	FindByID(id uint64) (*models.Group, error)

	// UpdateState writes lifecycle fields if the stored version still matches
	// group.Version, then increments group.Version
	UpdateState(group *models.Group) error

	// ListByStudent lists groups in which the student is an active member
	ListByStudent(studentID uint64, semester *int) ([]models.Group, error)

	// AddMember adds a member row
	AddMember(member *models.GroupMember) error

	// DeactivateMember marks a student's active membership inactive
	DeactivateMember(groupID, studentID uint64, at time.Time) error

	// DeactivateAllMembers marks every active membership of a group inactive
	DeactivateAllMembers(groupID uint64, at time.Time) (int64, error)

	// CountActiveMembers counts active members of a group
	CountActiveMembers(groupID uint64) (int64, error)

	// FindActiveMembership finds the student's active membership for a semester
	FindActiveMembership(studentID uint64, semester int) (*models.GroupMember, error)

	// ListActiveMemberIDs lists the student IDs of a group's active members
	ListActiveMemberIDs(groupID uint64) ([]uint64, error)
}

// InvitationRepository defines the interface for invitation data access
type InvitationRepository interface {
	// Create creates a new invitation
	Create(invitation *models.Invitation) error

	// FindByID finds an invitation with its group
	FindByID(id uint64) (*models.Invitation, error)

	// FindPending finds the pending invitation for a (group, invitee) pair
	FindPending(groupID, inviteeID uint64) (*models.Invitation, error)

	// ListPendingByGroup lists pending invitations of a group
	ListPendingByGroup(groupID uint64) ([]models.Invitation, error)

	// ListPendingByInvitee lists an invitee's pending invitations for a semester
	ListPendingByInvitee(inviteeID uint64, semester int) ([]models.Invitation, error)

	// ListByGroup lists every invitation of a group, newest first
	ListByGroup(groupID uint64) ([]models.Invitation, error)

	// ListByInvitee lists an invitee's invitations, newest first
	ListByInvitee(inviteeID uint64, semester *int) ([]models.Invitation, error)

	// Resolve moves a pending invitation to status. It reports false without
	// error when the invitation was no longer pending.
	Resolve(id uint64, status models.InvitationStatus, reason *string, at time.Time) (bool, error)
}

// ProjectRepository defines the interface for project and allocation data access
type ProjectRepository interface {
	// Create creates a project and its preference rows
	Create(project *models.Project) error

	// FindByID finds a project with preferences and decisions in order
	FindByID(id uint64) (*models.Project, error)

	// FindByGroupID finds the project registered for a group
	FindByGroupID(groupID uint64) (*models.Project, error)

	// UpdateAllocation writes cursor and allocation fields if the stored
	// version still matches project.Version, then increments project.Version
	UpdateAllocation(project *models.Project) error

	// AppendDecision appends to a project's decision log
	AppendDecision(decision *models.AllocationDecision) error

	// ListPendingForFaculty lists pending projects whose cursor points at the faculty
	ListPendingForFaculty(facultyID uint64) ([]models.Project, error)

	// ListByStatus lists one page of projects with the given allocation status
	// and the total number of matches
	ListByStatus(status models.AllocationStatus, params utils.PaginationParams) ([]models.Project, int64, error)

	// ListStalled lists pending projects whose cursor last moved before the given time
	ListStalled(before time.Time) ([]models.Project, error)
}
