package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yukikurage/project-allocation-api/internal/constants"
	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GroupService owns group membership, capacity and lifecycle.
type GroupService struct {
	engine
	invitations *InvitationService
}

// NewGroupService creates a new GroupService.
func NewGroupService(deps Dependencies, invitations *InvitationService) *GroupService {
	return &GroupService{
		engine:      newEngine(deps),
		invitations: invitations,
	}
}

// CreateGroupInput represents parameters to create a group.
type CreateGroupInput struct {
	Name         string
	Semester     int
	AcademicYear string
}

// CreateGroup creates a forming group led by the calling student.
func (s *GroupService) CreateGroup(ctx context.Context, p Principal, input CreateGroupInput) (*models.Group, error) {
	if err := p.require(models.UserRoleStudent); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" || len(name) > constants.MaxGroupNameLength {
		return nil, ErrInvalidGroupName
	}
	if input.Semester <= 0 {
		return nil, ErrInvalidSemester
	}
	academicYear := strings.TrimSpace(input.AcademicYear)
	if academicYear == "" {
		return nil, ErrInvalidAcademicYear
	}

	rules := s.Rules.ForSemester(input.Semester)

	unlock := s.Locks.Lock(studentKey(input.Semester, p.UserID))
	defer unlock()

	var group *models.Group
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		_, err := tx.Groups().FindActiveMembership(p.UserID, input.Semester)
		if ok, err := found(err); err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		} else if ok {
			return ErrAlreadyMember
		}

		now := s.Now()
		group = &models.Group{
			Name:         name,
			Semester:     input.Semester,
			AcademicYear: academicYear,
			Status:       models.GroupStatusForming,
			MinMembers:   rules.MinMembers,
			MaxMembers:   rules.MaxMembers,
			LeaderID:     p.UserID,
			Version:      1,
			Members: []models.GroupMember{{
				StudentID: p.UserID,
				Semester:  input.Semester,
				Role:      models.MemberRoleLeader,
				IsActive:  true,
				JoinedAt:  now,
			}},
		}
		if err := tx.Groups().Create(group); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("failed to create group: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.GroupTransition(string(models.GroupStatusForming))
	s.Log.Info("group created",
		zap.Uint64("group_id", group.ID),
		zap.Uint64("leader_id", p.UserID),
		zap.Int("semester", group.Semester),
	)

	return s.Store.WithContext(ctx).Groups().FindByID(group.ID)
}

// FinalizeGroup freezes membership and closes the group's pending invitations.
func (s *GroupService) FinalizeGroup(ctx context.Context, p Principal, groupID uint64) (*models.Group, error) {
	unlock := s.Locks.Lock(groupKey(groupID))
	defer unlock()

	var group *models.Group
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		group, err = tx.Groups().FindByID(groupID)
		if err != nil {
			return notFound(err, ErrGroupNotFound, "find group")
		}
		if group.LeaderID != p.UserID {
			return ErrNotLeader
		}
		if !group.Status.CanTransitionTo(models.GroupStatusFinalized) {
			return ErrInvalidGroupState
		}

		active, err := tx.Groups().CountActiveMembers(group.ID)
		if err != nil {
			return fmt.Errorf("failed to count members: %w", err)
		}
		if active < int64(group.MinMembers) {
			return ErrBelowMinimum
		}

		now := s.Now()
		group.Status = models.GroupStatusFinalized
		group.FinalizedAt = &now
		if err := tx.Groups().UpdateState(group); err != nil {
			return conflict(err, ErrConflict, "finalize group")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.GroupTransition(string(models.GroupStatusFinalized))
	s.Log.Info("group finalized", zap.Uint64("group_id", group.ID))
	s.emit(events.Event{
		Type:     events.TypeGroupFinalized,
		GroupID:  group.ID,
		ActorID:  p.UserID,
		Audience: []events.Audience{events.ToGroup(group.ID)},
	})

	if err := s.invitations.autoRejectPending(ctx, group.ID, constants.ReasonGroupFinalized); err != nil {
		return nil, fmt.Errorf("group finalized but pending invitations were not all closed: %w", err)
	}

	return s.Store.WithContext(ctx).Groups().FindByID(group.ID)
}

// RemoveMember lets the leader remove another member while the group is forming or open.
func (s *GroupService) RemoveMember(ctx context.Context, p Principal, groupID, studentID uint64) (*models.Group, error) {
	group, err := s.Store.WithContext(ctx).Groups().FindByID(groupID)
	if err != nil {
		return nil, notFound(err, ErrGroupNotFound, "find group")
	}

	err = s.deactivate(ctx, group, studentID, func(current *models.Group) error {
		if current.LeaderID != p.UserID {
			return ErrNotLeader
		}
		if studentID == current.LeaderID {
			return ErrCannotRemoveLeader
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("member removed",
		zap.Uint64("group_id", groupID),
		zap.Uint64("student_id", studentID),
	)
	s.emit(events.Event{
		Type:     events.TypeMemberRemoved,
		GroupID:  groupID,
		ActorID:  p.UserID,
		Payload:  map[string]interface{}{"student_id": studentID},
		Audience: []events.Audience{events.ToGroup(groupID), events.ToUser(studentID)},
	})

	return s.Store.WithContext(ctx).Groups().FindByID(groupID)
}

// LeaveGroup removes the calling member. The leader cannot leave; they disband instead.
func (s *GroupService) LeaveGroup(ctx context.Context, p Principal, groupID uint64) error {
	group, err := s.Store.WithContext(ctx).Groups().FindByID(groupID)
	if err != nil {
		return notFound(err, ErrGroupNotFound, "find group")
	}

	err = s.deactivate(ctx, group, p.UserID, func(current *models.Group) error {
		if !current.HasActiveMember(p.UserID) {
			return ErrNotMember
		}
		if current.LeaderID == p.UserID {
			return ErrCannotRemoveLeader
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Log.Info("member left",
		zap.Uint64("group_id", groupID),
		zap.Uint64("student_id", p.UserID),
	)
	s.emit(events.Event{
		Type:     events.TypeMemberLeft,
		GroupID:  groupID,
		ActorID:  p.UserID,
		Payload:  map[string]interface{}{"student_id": p.UserID},
		Audience: []events.Audience{events.ToGroup(groupID)},
	})
	return nil
}

// deactivate ends one student's membership after authorize accepts the fresh group state.
func (s *GroupService) deactivate(ctx context.Context, group *models.Group, studentID uint64, authorize func(*models.Group) error) error {
	unlock := s.Locks.Lock(groupKey(group.ID), studentKey(group.Semester, studentID))
	defer unlock()

	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Groups().FindByID(group.ID)
		if err != nil {
			return notFound(err, ErrGroupNotFound, "find group")
		}
		if err := authorize(current); err != nil {
			return err
		}
		if current.Status == models.GroupStatusLocked {
			return ErrProjectAlreadyRegistered
		}
		if !current.Status.AcceptsMembers() {
			return ErrInvalidGroupState
		}

		if err := tx.Groups().DeactivateMember(current.ID, studentID, s.Now()); err != nil {
			return notFound(err, ErrMemberNotFound, "remove member")
		}
		if err := tx.Groups().UpdateState(current); err != nil {
			return conflict(err, ErrConflict, "update group")
		}
		return nil
	})
}

// DisbandGroup ends the group, releasing every member and closing pending invitations.
func (s *GroupService) DisbandGroup(ctx context.Context, p Principal, groupID uint64) error {
	unlock := s.Locks.Lock(groupKey(groupID))
	defer unlock()

	var formerMembers []uint64
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		group, err := tx.Groups().FindByID(groupID)
		if err != nil {
			return notFound(err, ErrGroupNotFound, "find group")
		}
		if group.LeaderID != p.UserID {
			return ErrNotLeader
		}
		if group.Status == models.GroupStatusLocked {
			return ErrProjectAlreadyRegistered
		}
		if !group.Status.CanTransitionTo(models.GroupStatusDisbanded) {
			return ErrInvalidGroupState
		}

		formerMembers, err = tx.Groups().ListActiveMemberIDs(group.ID)
		if err != nil {
			return fmt.Errorf("failed to list members: %w", err)
		}

		now := s.Now()
		if _, err := tx.Groups().DeactivateAllMembers(group.ID, now); err != nil {
			return fmt.Errorf("failed to release members: %w", err)
		}
		group.Status = models.GroupStatusDisbanded
		group.DisbandedAt = &now
		if err := tx.Groups().UpdateState(group); err != nil {
			return conflict(err, ErrConflict, "disband group")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.Metrics.GroupTransition(string(models.GroupStatusDisbanded))
	s.Log.Info("group disbanded",
		zap.Uint64("group_id", groupID),
		zap.Int("released_members", len(formerMembers)),
	)
	// Members are inactive now, so address them directly.
	s.emit(events.Event{
		Type:     events.TypeGroupDisbanded,
		GroupID:  groupID,
		ActorID:  p.UserID,
		Audience: append(events.ToUsers(formerMembers...), events.ToGroup(groupID)),
	})

	if err := s.invitations.autoRejectPending(ctx, groupID, constants.ReasonGroupDisbanded); err != nil {
		return fmt.Errorf("group disbanded but pending invitations were not all closed: %w", err)
	}
	return nil
}

// lock moves a finalized group to locked inside the caller's transaction.
// The caller holds the group's lock.
func (s *GroupService) lock(tx repository.Store, group *models.Group) error {
	if !group.Status.CanTransitionTo(models.GroupStatusLocked) {
		return ErrNotFinalized
	}

	now := s.Now()
	group.Status = models.GroupStatusLocked
	group.LockedAt = &now
	if err := tx.Groups().UpdateState(group); err != nil {
		return conflict(err, ErrConflict, "lock group")
	}
	return nil
}

// GetGroup returns a group with its members to its students, to faculty
// ranked on its registered project and to admins.
func (s *GroupService) GetGroup(ctx context.Context, p Principal, groupID uint64) (*models.Group, error) {
	store := s.Store.WithContext(ctx)
	group, err := store.Groups().FindByID(groupID)
	if err != nil {
		return nil, notFound(err, ErrGroupNotFound, "find group")
	}

	switch p.Role {
	case models.UserRoleAdmin:
	case models.UserRoleStudent:
		if !group.HasActiveMember(p.UserID) {
			return nil, ErrNotMember
		}
	case models.UserRoleFaculty:
		project, err := store.Projects().FindByGroupID(groupID)
		if ok, err := found(err); err != nil {
			return nil, fmt.Errorf("failed to find project: %w", err)
		} else if !ok || !containsID(project.RankedFacultyIDs(), p.UserID) {
			return nil, ErrNotAuthorized
		}
	default:
		return nil, ErrNotAuthorized
	}
	return group, nil
}

// ListMyGroups lists the groups the calling student is active in.
func (s *GroupService) ListMyGroups(ctx context.Context, p Principal, semester *int) ([]models.Group, error) {
	if err := p.require(models.UserRoleStudent); err != nil {
		return nil, err
	}
	groups, err := s.Store.WithContext(ctx).Groups().ListByStudent(p.UserID, semester)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// ActiveMemberIDs resolves a group audience for the event dispatcher.
func (s *GroupService) ActiveMemberIDs(ctx context.Context, groupID uint64) ([]uint64, error) {
	return s.Store.WithContext(ctx).Groups().ListActiveMemberIDs(groupID)
}
