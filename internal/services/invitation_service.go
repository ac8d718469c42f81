package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/yukikurage/project-allocation-api/internal/constants"
	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var reasonCodes = map[string]string{
	constants.ReasonGroupFinalized: constants.ReasonCodeGroupFinalized,
	constants.ReasonGroupFull:      constants.ReasonCodeGroupFull,
	constants.ReasonGroupDisbanded: constants.ReasonCodeGroupDisbanded,
	constants.ReasonJoinedOther:    constants.ReasonCodeJoinedOther,
}

// InvitationService is the invitation ledger. It owns invitation state and
// the membership change caused by an accepted invitation.
type InvitationService struct {
	engine
}

// NewInvitationService creates a new InvitationService.
func NewInvitationService(deps Dependencies) *InvitationService {
	return &InvitationService{engine: newEngine(deps)}
}

// CreateInvitationInput represents parameters to invite a student to a group.
type CreateInvitationInput struct {
	GroupID   uint64
	InviteeID uint64
	Role      models.MemberRole
}

// CreateInvitation records a pending invitation from the group's leader.
func (s *InvitationService) CreateInvitation(ctx context.Context, p Principal, input CreateInvitationInput) (*models.Invitation, error) {
	if err := p.require(models.UserRoleStudent); err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = models.MemberRoleMember
	}
	if role != models.MemberRoleMember {
		return nil, ErrInvalidRole
	}

	store := s.Store.WithContext(ctx)
	group, err := store.Groups().FindByID(input.GroupID)
	if err != nil {
		return nil, notFound(err, ErrGroupNotFound, "find group")
	}
	if group.LeaderID != p.UserID {
		return nil, ErrNotAuthorized
	}

	invitee, err := store.Users().FindByID(input.InviteeID)
	if err != nil {
		return nil, notFound(err, ErrInviteeNotFound, "find invitee")
	}
	if invitee.Role != models.UserRoleStudent || invitee.ID == p.UserID {
		return nil, ErrInvalidInvitee
	}

	unlock := s.Locks.Lock(groupKey(group.ID), studentKey(group.Semester, invitee.ID))
	defer unlock()

	var (
		invitation *models.Invitation
		opened     bool
	)
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		group, err := tx.Groups().FindByID(input.GroupID)
		if err != nil {
			return notFound(err, ErrGroupNotFound, "find group")
		}
		if group.LeaderID != p.UserID || !group.HasActiveMember(p.UserID) {
			return ErrNotAuthorized
		}
		if !group.Status.AcceptsMembers() {
			return ErrGroupNotOpen
		}

		_, err = tx.Groups().FindActiveMembership(invitee.ID, group.Semester)
		if ok, err := found(err); err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		} else if ok {
			return ErrAlreadyMember
		}

		_, err = tx.Invitations().FindPending(group.ID, invitee.ID)
		if ok, err := found(err); err != nil {
			return fmt.Errorf("failed to check pending invitations: %w", err)
		} else if ok {
			return ErrDuplicatePending
		}

		active, err := tx.Groups().CountActiveMembers(group.ID)
		if err != nil {
			return fmt.Errorf("failed to count members: %w", err)
		}
		if active >= int64(group.MaxMembers) {
			return ErrGroupFull
		}

		invitation = &models.Invitation{
			GroupID:      group.ID,
			InviteeID:    invitee.ID,
			InvitedBy:    p.UserID,
			Semester:     group.Semester,
			Status:       models.InvitationStatusPending,
			ProposedRole: role,
			CreatedAt:    s.Now(),
		}
		if err := tx.Invitations().Create(invitation); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicatePending
			}
			return fmt.Errorf("failed to create invitation: %w", err)
		}

		if group.Status == models.GroupStatusForming {
			group.Status = models.GroupStatusOpen
			if err := tx.Groups().UpdateState(group); err != nil {
				return conflict(err, ErrConflict, "open group")
			}
			opened = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opened {
		s.Metrics.GroupTransition(string(models.GroupStatusOpen))
	}
	s.Log.Info("invitation created",
		zap.Uint64("invitation_id", invitation.ID),
		zap.Uint64("group_id", invitation.GroupID),
		zap.Uint64("invitee_id", invitation.InviteeID),
	)
	s.emit(events.Event{
		Type:         events.TypeInvitationCreated,
		GroupID:      invitation.GroupID,
		InvitationID: invitation.ID,
		ActorID:      p.UserID,
		Payload: map[string]interface{}{
			"group_name":    group.Name,
			"proposed_role": invitation.ProposedRole,
		},
		Audience: []events.Audience{events.ToUser(invitation.InviteeID), events.ToGroup(invitation.GroupID)},
	})

	return invitation, nil
}

// Respond accepts or rejects a pending invitation on behalf of its invitee.
//
// An acceptance that would overfill the group fails with ErrGroupFull and
// leaves the invitation pending; the group-full sweep then auto-rejects it.
// Accepting an invitation that the sweep already closed also yields
// ErrGroupFull, so racing acceptances report the same outcome whether the
// race is lost to the local lock or to another instance's write.
func (s *InvitationService) Respond(ctx context.Context, p Principal, invitationID uint64, decision models.InvitationDecision) (*models.Invitation, error) {
	if decision != models.InvitationDecisionAccept && decision != models.InvitationDecisionReject {
		return nil, ErrInvalidDecision
	}

	store := s.Store.WithContext(ctx)
	invitation, err := store.Invitations().FindByID(invitationID)
	if err != nil {
		return nil, notFound(err, ErrInvitationNotFound, "find invitation")
	}
	if invitation.InviteeID != p.UserID {
		return nil, ErrNotForYou
	}

	unlock := s.Locks.Lock(groupKey(invitation.GroupID), studentKey(invitation.Semester, invitation.InviteeID))
	defer unlock()

	if invitation.IsPending() {
		if err := s.reconcileGroup(ctx, invitation.GroupID); err != nil {
			return nil, err
		}
	}

	full, err := s.answerWithRetry(ctx, invitationID, decision)
	if err != nil {
		return nil, err
	}

	resolved, err := store.Invitations().FindByID(invitationID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload invitation: %w", err)
	}

	s.Metrics.InvitationResolved(string(resolved.Status), "")
	s.Log.Info("invitation answered",
		zap.Uint64("invitation_id", resolved.ID),
		zap.Uint64("group_id", resolved.GroupID),
		zap.String("status", string(resolved.Status)),
	)
	s.emit(events.Event{
		Type:         events.TypeInvitationUpdate,
		GroupID:      resolved.GroupID,
		InvitationID: resolved.ID,
		ActorID:      p.UserID,
		Payload: map[string]interface{}{
			"type":       string(resolved.Status),
			"invitee_id": resolved.InviteeID,
		},
		Audience: []events.Audience{events.ToGroup(resolved.GroupID), events.ToUser(resolved.InviteeID)},
	})

	if resolved.Status == models.InvitationStatusAccepted {
		if err := s.rejectOtherInvitations(ctx, resolved); err != nil {
			s.Log.Error("failed to auto-reject the invitee's other invitations",
				zap.Uint64("invitee_id", resolved.InviteeID),
				zap.Error(err),
			)
		}
		if full {
			if err := s.autoRejectPending(ctx, resolved.GroupID, constants.ReasonGroupFull); err != nil {
				s.Log.Error("failed to auto-reject invitations of a full group",
					zap.Uint64("group_id", resolved.GroupID),
					zap.Error(err),
				)
			}
		}
	}

	return resolved, nil
}

// answerAttempts bounds how often an answer is replayed after another
// instance changed the group between our read and our write.
const answerAttempts = 3

// answerWithRetry replays answer while the group write loses the version check.
// The replay reads the group again, so a slot taken elsewhere surfaces as
// ErrGroupFull rather than ErrConflict.
func (s *InvitationService) answerWithRetry(ctx context.Context, invitationID uint64, decision models.InvitationDecision) (bool, error) {
	for attempt := 1; ; attempt++ {
		full, err := s.answer(ctx, invitationID, decision)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return full, err
		}
		if attempt == answerAttempts {
			return false, ErrConflict
		}
		s.Log.Debug("group changed while answering invitation, retrying",
			zap.Uint64("invitation_id", invitationID),
			zap.Int("attempt", attempt),
		)
	}
}

// answer flips the invitation in one transaction. Accepting also adds the
// member and bumps the group version. It reports whether the group is now full.
func (s *InvitationService) answer(ctx context.Context, invitationID uint64, decision models.InvitationDecision) (bool, error) {
	var full bool
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Invitations().FindByID(invitationID)
		if err != nil {
			return notFound(err, ErrInvitationNotFound, "find invitation")
		}
		if !current.IsPending() {
			return resolvedError(current, decision)
		}

		now := s.Now()
		if decision == models.InvitationDecisionReject {
			changed, err := tx.Invitations().Resolve(current.ID, models.InvitationStatusRejected, nil, now)
			if err != nil {
				return fmt.Errorf("failed to reject invitation: %w", err)
			}
			if !changed {
				return ErrAlreadyResolved
			}
			return nil
		}

		group, err := tx.Groups().FindByID(current.GroupID)
		if err != nil {
			return notFound(err, ErrGroupNotFound, "find group")
		}
		if !group.Status.AcceptsMembers() {
			return ErrGroupNotOpen
		}

		_, err = tx.Groups().FindActiveMembership(current.InviteeID, current.Semester)
		if ok, err := found(err); err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		} else if ok {
			return ErrAlreadyMember
		}

		active, err := tx.Groups().CountActiveMembers(group.ID)
		if err != nil {
			return fmt.Errorf("failed to count members: %w", err)
		}
		if active >= int64(group.MaxMembers) {
			return ErrGroupFull
		}

		member := &models.GroupMember{
			GroupID:   group.ID,
			StudentID: current.InviteeID,
			Semester:  current.Semester,
			Role:      current.ProposedRole,
			IsActive:  true,
			JoinedAt:  now,
		}
		if err := tx.Groups().AddMember(member); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("failed to add member: %w", err)
		}

		changed, err := tx.Invitations().Resolve(current.ID, models.InvitationStatusAccepted, nil, now)
		if err != nil {
			return fmt.Errorf("failed to accept invitation: %w", err)
		}
		if !changed {
			return ErrAlreadyResolved
		}

		// Membership changed, so the group's version moves too.
		if err := tx.Groups().UpdateState(group); err != nil {
			return fmt.Errorf("failed to update group: %w", err)
		}

		full = active+1 >= int64(group.MaxMembers)
		return nil
	})
	return full, err
}

// resolvedError explains why a resolved invitation cannot be answered.
// Only an acceptance reports the group filling up; a late rejection is
// simply already resolved.
func resolvedError(invitation *models.Invitation, decision models.InvitationDecision) error {
	if decision == models.InvitationDecisionAccept &&
		invitation.Status == models.InvitationStatusAutoRejected &&
		invitation.ResolutionReason != nil &&
		*invitation.ResolutionReason == constants.ReasonGroupFull {
		return ErrGroupFull
	}
	return ErrAlreadyResolved
}

// AutoRejectAllPendingFor closes every pending invitation of a group with reason.
func (s *InvitationService) AutoRejectAllPendingFor(ctx context.Context, groupID uint64, reason string) error {
	unlock := s.Locks.Lock(groupKey(groupID))
	defer unlock()

	return s.autoRejectPending(ctx, groupID, reason)
}

// autoRejectPending resolves each pending invitation in its own ledger call.
// Resolve only moves pending rows, so overlapping sweeps close each invitation once.
func (s *InvitationService) autoRejectPending(ctx context.Context, groupID uint64, reason string) error {
	store := s.Store.WithContext(ctx)
	pending, err := store.Invitations().ListPendingByGroup(groupID)
	if err != nil {
		return fmt.Errorf("failed to list pending invitations: %w", err)
	}

	var errs []error
	for i := range pending {
		if err := s.autoReject(store, &pending[i], reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// rejectOtherInvitations closes the invitee's other pending invitations for
// the semester once they have joined a group.
func (s *InvitationService) rejectOtherInvitations(ctx context.Context, accepted *models.Invitation) error {
	store := s.Store.WithContext(ctx)
	pending, err := store.Invitations().ListPendingByInvitee(accepted.InviteeID, accepted.Semester)
	if err != nil {
		return fmt.Errorf("failed to list pending invitations: %w", err)
	}

	var errs []error
	for i := range pending {
		if pending[i].ID == accepted.ID {
			continue
		}
		if err := s.autoReject(store, &pending[i], constants.ReasonJoinedOther); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *InvitationService) autoReject(store repository.Store, invitation *models.Invitation, reason string) error {
	now := s.Now()
	changed, err := store.Invitations().Resolve(invitation.ID, models.InvitationStatusAutoRejected, &reason, now)
	if err != nil {
		return fmt.Errorf("failed to auto-reject invitation %d: %w", invitation.ID, err)
	}
	if !changed {
		return nil
	}

	invitation.Status = models.InvitationStatusAutoRejected
	invitation.ResolutionReason = &reason
	invitation.ResolvedAt = &now

	code := reasonCodes[reason]
	s.Metrics.InvitationResolved(string(models.InvitationStatusAutoRejected), code)
	s.Log.Info("invitation auto-rejected",
		zap.Uint64("invitation_id", invitation.ID),
		zap.Uint64("group_id", invitation.GroupID),
		zap.Uint64("invitee_id", invitation.InviteeID),
		zap.String("reason_code", code),
	)
	s.emit(events.Event{
		Type:         events.TypeInvitationUpdate,
		GroupID:      invitation.GroupID,
		InvitationID: invitation.ID,
		Payload: map[string]interface{}{
			"type":        string(models.InvitationStatusAutoRejected),
			"reason":      reason,
			"reason_code": code,
		},
		Audience: []events.Audience{events.ToUser(invitation.InviteeID), events.ToGroup(invitation.GroupID)},
	})
	return nil
}

// staleReason reports why a group's pending invitations can no longer be accepted.
func staleReason(group *models.Group) (string, bool) {
	switch group.Status {
	case models.GroupStatusFinalized, models.GroupStatusLocked:
		return constants.ReasonGroupFinalized, true
	case models.GroupStatusDisbanded:
		return constants.ReasonGroupDisbanded, true
	}
	if len(group.ActiveMembers()) >= group.MaxMembers {
		return constants.ReasonGroupFull, true
	}
	return "", false
}

// reconcileGroup repairs pending invitations left behind when a sweep did not
// complete after the group changed state. It is idempotent.
func (s *InvitationService) reconcileGroup(ctx context.Context, groupID uint64) error {
	group, err := s.Store.WithContext(ctx).Groups().FindByID(groupID)
	if err != nil {
		return notFound(err, ErrGroupNotFound, "find group")
	}

	reason, stale := staleReason(group)
	if !stale {
		return nil
	}
	return s.autoRejectPending(ctx, groupID, reason)
}

// ListForInvitee lists the caller's invitations, newest first.
func (s *InvitationService) ListForInvitee(ctx context.Context, p Principal, semester *int) ([]models.Invitation, error) {
	if err := p.require(models.UserRoleStudent); err != nil {
		return nil, err
	}

	store := s.Store.WithContext(ctx)
	invitations, err := store.Invitations().ListByInvitee(p.UserID, semester)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	repaired := false
	checked := make(map[uint64]struct{})
	for _, inv := range invitations {
		if !inv.IsPending() {
			continue
		}
		if _, ok := checked[inv.GroupID]; ok {
			continue
		}
		checked[inv.GroupID] = struct{}{}

		if _, stale := staleReason(&inv.Group); !stale {
			continue
		}
		if err := s.reconcileGroup(ctx, inv.GroupID); err != nil {
			return nil, err
		}
		repaired = true
	}

	if !repaired {
		return invitations, nil
	}
	invitations, err = store.Invitations().ListByInvitee(p.UserID, semester)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

// ListForGroup lists every invitation of a group for its members and admins.
func (s *InvitationService) ListForGroup(ctx context.Context, p Principal, groupID uint64) ([]models.Invitation, error) {
	store := s.Store.WithContext(ctx)
	group, err := store.Groups().FindByID(groupID)
	if err != nil {
		return nil, notFound(err, ErrGroupNotFound, "find group")
	}
	if !p.IsAdmin() && !group.HasActiveMember(p.UserID) {
		return nil, ErrNotMember
	}

	if _, stale := staleReason(group); stale {
		if err := s.reconcileGroup(ctx, groupID); err != nil {
			return nil, err
		}
	}

	invitations, err := store.Invitations().ListByGroup(groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}
