package services

import (
	"context"
	"sync"

	"github.com/yukikurage/project-allocation-api/internal/constants"
	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/repository"
)

func (s *EngineTestSuite) TestCreateInvitation_OpensGroup() {
	leader := s.student("alice")
	invitee := s.student("bob")
	group := s.createGroup(leader, 3)

	invitation := s.invite(group, leader, invitee)

	s.Equal(models.InvitationStatusPending, invitation.Status)
	s.Equal(models.MemberRoleMember, invitation.ProposedRole)
	s.Equal(models.GroupStatusOpen, s.reloadGroup(group.ID).Status)

	created := s.recorder.OfType(events.TypeInvitationCreated)
	s.Require().Len(created, 1)
	s.True(hasUserAudience(created[0], invitee.ID))
}

func (s *EngineTestSuite) TestCreateInvitation_Rejections() {
	leader := s.student("alice")
	member := s.student("bob")
	invitee := s.student("carol")
	elsewhere := s.student("dave")
	prof := s.faculty("prof", 1)[0]
	group := s.createGroup(leader, 3)
	s.join(group, leader, member)
	s.invite(group, leader, invitee)

	otherLeader := s.student("erin")
	otherGroup := s.createGroup(otherLeader, 3)
	s.join(otherGroup, otherLeader, elsewhere)

	tests := []struct {
		name    string
		p       Principal
		groupID uint64
		invitee uint64
		role    models.MemberRole
		want    error
	}{
		{"member is not the leader", as(member), group.ID, invitee.ID, "", ErrNotAuthorized},
		{"faculty cannot invite", as(prof), group.ID, invitee.ID, "", ErrNotAuthorized},
		{"missing group", as(leader), 999, invitee.ID, "", ErrGroupNotFound},
		{"missing invitee", as(leader), group.ID, 999, "", ErrInviteeNotFound},
		{"invitee is faculty", as(leader), group.ID, prof.ID, "", ErrInvalidInvitee},
		{"self invite", as(leader), group.ID, leader.ID, "", ErrInvalidInvitee},
		{"leader role", as(leader), group.ID, invitee.ID, models.MemberRoleLeader, ErrInvalidRole},
		{"active elsewhere", as(leader), group.ID, elsewhere.ID, "", ErrAlreadyMember},
		{"already in this group", as(leader), group.ID, member.ID, "", ErrAlreadyMember},
		{"duplicate pending", as(leader), group.ID, invitee.ID, "", ErrDuplicatePending},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.invitations.CreateInvitation(s.ctx, tt.p, CreateInvitationInput{
				GroupID:   tt.groupID,
				InviteeID: tt.invitee,
				Role:      tt.role,
			})
			s.ErrorIs(err, tt.want)
		})
	}
}

func (s *EngineTestSuite) TestCreateInvitation_GroupFull() {
	leader := s.student("alice")
	members := s.students("member", 4)
	extra := s.student("extra")
	group := s.createGroup(leader, capstoneSemester)
	s.join(group, leader, members...)

	_, err := s.invitations.CreateInvitation(s.ctx, as(leader), CreateInvitationInput{GroupID: group.ID, InviteeID: extra.ID})
	s.ErrorIs(err, ErrGroupFull)
}

func (s *EngineTestSuite) TestRespond_Rejections() {
	leader := s.student("alice")
	invitee := s.student("bob")
	stranger := s.student("eve")
	group := s.createGroup(leader, 3)
	invitation := s.invite(group, leader, invitee)

	_, err := s.invitations.Respond(s.ctx, as(invitee), 999, models.InvitationDecisionAccept)
	s.ErrorIs(err, ErrInvitationNotFound)

	_, err = s.invitations.Respond(s.ctx, as(stranger), invitation.ID, models.InvitationDecisionAccept)
	s.ErrorIs(err, ErrNotForYou)

	_, err = s.invitations.Respond(s.ctx, as(invitee), invitation.ID, "maybe")
	s.ErrorIs(err, ErrInvalidDecision)

	rejected, err := s.invitations.Respond(s.ctx, as(invitee), invitation.ID, models.InvitationDecisionReject)
	s.Require().NoError(err)
	s.Equal(models.InvitationStatusRejected, rejected.Status)
	s.NotNil(rejected.ResolvedAt)
	s.Nil(rejected.ResolutionReason)

	_, err = s.invitations.Respond(s.ctx, as(invitee), invitation.ID, models.InvitationDecisionAccept)
	s.ErrorIs(err, ErrAlreadyResolved)
	s.False(s.reloadGroup(group.ID).HasActiveMember(invitee.ID))
}

func (s *EngineTestSuite) TestRespond_AcceptRejectsOtherInvitations() {
	leaderA := s.student("alice")
	leaderB := s.student("bruce")
	invitee := s.student("carol")
	groupA := s.createGroup(leaderA, 3)
	groupB := s.createGroup(leaderB, 3)
	fromA := s.invite(groupA, leaderA, invitee)
	fromB := s.invite(groupB, leaderB, invitee)

	accepted, err := s.invitations.Respond(s.ctx, as(invitee), fromA.ID, models.InvitationDecisionAccept)
	s.Require().NoError(err)
	s.Equal(models.InvitationStatusAccepted, accepted.Status)
	s.True(s.reloadGroup(groupA.ID).HasActiveMember(invitee.ID))

	other := s.reloadInvitation(fromB.ID)
	s.Equal(models.InvitationStatusAutoRejected, other.Status)
	s.Equal(constants.ReasonJoinedOther, *other.ResolutionReason)

	_, err = s.invitations.Respond(s.ctx, as(invitee), fromB.ID, models.InvitationDecisionAccept)
	s.ErrorIs(err, ErrAlreadyResolved)
}

func (s *EngineTestSuite) TestCapacityNeverExceeded() {
	leader := s.student("alice")
	invitees := s.students("invitee", 6)
	group := s.createGroup(leader, capstoneSemester)

	invitations := make([]*models.Invitation, len(invitees))
	for i, st := range invitees {
		if i < 5 {
			invitations[i] = s.invite(group, leader, st)
		}
	}

	// Four acceptances fill the group; the fifth invitation is swept.
	for i := 0; i < 4; i++ {
		_, err := s.invitations.Respond(s.ctx, as(invitees[i]), invitations[i].ID, models.InvitationDecisionAccept)
		s.Require().NoError(err)
	}

	swept := s.reloadInvitation(invitations[4].ID)
	s.Equal(models.InvitationStatusAutoRejected, swept.Status)
	s.Equal(constants.ReasonGroupFull, *swept.ResolutionReason)

	_, err := s.invitations.Respond(s.ctx, as(invitees[4]), invitations[4].ID, models.InvitationDecisionAccept)
	s.ErrorIs(err, ErrGroupFull)

	_, err = s.invitations.CreateInvitation(s.ctx, as(leader), CreateInvitationInput{GroupID: group.ID, InviteeID: invitees[5].ID})
	s.ErrorIs(err, ErrGroupFull)

	group = s.reloadGroup(group.ID)
	s.Len(group.ActiveMembers(), group.MaxMembers)
}

func (s *EngineTestSuite) TestConcurrentAcceptForLastSlot() {
	leader := s.student("alice")
	members := s.students("member", 3)
	racers := s.students("racer", 2)
	group := s.createGroup(leader, capstoneSemester)
	s.join(group, leader, members...)
	s.Require().Len(s.reloadGroup(group.ID).ActiveMembers(), 4)

	invitations := []*models.Invitation{
		s.invite(group, leader, racers[0]),
		s.invite(group, leader, racers[1]),
	}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, 2)
	)
	for i := range racers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.invitations.Respond(s.ctx, as(racers[i]), invitations[i].ID, models.InvitationDecisionAccept)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case s.ErrorIs(err, ErrGroupFull):
			full++
		}
	}
	s.Equal(1, succeeded)
	s.Equal(1, full)

	group = s.reloadGroup(group.ID)
	s.Len(group.ActiveMembers(), 5)
}

// racingStore lets another writer commit right before the first transaction
// starts, while that transaction still sees the group as it was beforehand.
// This reproduces two server instances that share a database but not a locker.
type racingStore struct {
	repository.Store
	groupID uint64
	other   func() error

	mu           sync.Mutex
	transactions int
}

func (r *racingStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	r.mu.Lock()
	r.transactions++
	first := r.transactions == 1
	r.mu.Unlock()
	if !first {
		return r.Store.Transaction(ctx, fn)
	}

	before, err := r.Store.Groups().FindByID(r.groupID)
	if err != nil {
		return err
	}
	if err := r.other(); err != nil {
		return err
	}
	return r.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(staleGroupTx{Store: tx, group: before})
	})
}

type staleGroupTx struct {
	repository.Store
	group *models.Group
}

func (t staleGroupTx) Groups() repository.GroupRepository {
	return staleGroups{GroupRepository: t.Store.Groups(), group: t.group}
}

// staleGroups answers reads of one group from a snapshot and passes writes through.
type staleGroups struct {
	repository.GroupRepository
	group *models.Group
}

func (g staleGroups) FindByID(id uint64) (*models.Group, error) {
	if id != g.group.ID {
		return g.GroupRepository.FindByID(id)
	}
	snapshot := *g.group
	return &snapshot, nil
}

func (g staleGroups) CountActiveMembers(id uint64) (int64, error) {
	if id != g.group.ID {
		return g.GroupRepository.CountActiveMembers(id)
	}
	return int64(len(g.group.ActiveMembers())), nil
}

func (s *EngineTestSuite) TestRespond_LastSlotTakenByAnotherInstance() {
	leader := s.student("alice")
	members := s.students("member", 3)
	elsewhere := s.student("frank")
	late := s.student("erin")
	group := s.createGroup(leader, 3)
	s.join(group, leader, members...)

	taken := s.invite(group, leader, elsewhere)
	lost := s.invite(group, leader, late)

	// The other instance fills the last slot and commits without sweeping yet.
	store := &racingStore{Store: s.store, groupID: group.ID}
	store.other = func() error {
		return s.store.Transaction(s.ctx, func(tx repository.Store) error {
			if err := tx.Groups().AddMember(&models.GroupMember{
				GroupID:   group.ID,
				StudentID: elsewhere.ID,
				Semester:  taken.Semester,
				Role:      taken.ProposedRole,
				IsActive:  true,
				JoinedAt:  s.clock.Now(),
			}); err != nil {
				return err
			}
			if _, err := tx.Invitations().Resolve(taken.ID, models.InvitationStatusAccepted, nil, s.clock.Now()); err != nil {
				return err
			}
			current, err := tx.Groups().FindByID(group.ID)
			if err != nil {
				return err
			}
			return tx.Groups().UpdateState(current)
		})
	}

	deps := s.deps
	deps.Store = store
	_, err := NewInvitationService(deps).Respond(s.ctx, as(late), lost.ID, models.InvitationDecisionAccept)
	s.ErrorIs(err, ErrGroupFull)
	s.Equal(2, store.transactions)

	reloaded := s.reloadGroup(group.ID)
	s.Len(reloaded.ActiveMembers(), reloaded.MaxMembers)
	s.True(reloaded.HasActiveMember(elsewhere.ID))
	s.False(reloaded.HasActiveMember(late.ID))
	s.Equal(models.InvitationStatusPending, s.reloadInvitation(lost.ID).Status)
}

func (s *EngineTestSuite) TestRespond_RejectAfterGroupFilled() {
	leader := s.student("alice")
	members := s.students("member", 3)
	last := s.student("frank")
	undecided := s.student("erin")
	group := s.createGroup(leader, 3)
	s.join(group, leader, members...)

	pending := s.invite(group, leader, undecided)
	s.join(group, leader, last)

	_, err := s.invitations.Respond(s.ctx, as(undecided), pending.ID, models.InvitationDecisionReject)
	s.ErrorIs(err, ErrAlreadyResolved)
	s.Equal(models.InvitationStatusAutoRejected, s.reloadInvitation(pending.ID).Status)
}

func (s *EngineTestSuite) TestAutoRejectAllPendingFor_Idempotent() {
	leader := s.student("alice")
	invitee := s.student("bob")
	group := s.createGroup(leader, 3)
	invitation := s.invite(group, leader, invitee)
	s.recorder.Reset()

	s.Require().NoError(s.invitations.AutoRejectAllPendingFor(s.ctx, group.ID, constants.ReasonGroupFull))
	s.Require().NoError(s.invitations.AutoRejectAllPendingFor(s.ctx, group.ID, constants.ReasonGroupFull))

	s.Equal(models.InvitationStatusAutoRejected, s.reloadInvitation(invitation.ID).Status)
	s.Len(s.recorder.OfType(events.TypeInvitationUpdate), 1)
}

func (s *EngineTestSuite) TestListForInvitee_ReconcilesStalePending() {
	leader := s.student("alice")
	invitee := s.student("bob")
	group := s.createGroup(leader, 3)
	invitation := s.invite(group, leader, invitee)

	// Simulate a crash between the finalize commit and the sweep.
	s.Require().NoError(s.db.Model(&models.Group{}).
		Where("id = ?", group.ID).
		Update("status", models.GroupStatusFinalized).Error)

	listed, err := s.invitations.ListForInvitee(s.ctx, as(invitee), nil)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(invitation.ID, listed[0].ID)
	s.Equal(models.InvitationStatusAutoRejected, listed[0].Status)
	s.Equal(constants.ReasonGroupFinalized, *listed[0].ResolutionReason)
}

func (s *EngineTestSuite) TestRespond_ReconcilesStalePending() {
	leader := s.student("alice")
	invitee := s.student("bob")
	group := s.createGroup(leader, 3)
	invitation := s.invite(group, leader, invitee)

	s.Require().NoError(s.db.Model(&models.Group{}).
		Where("id = ?", group.ID).
		Update("status", models.GroupStatusDisbanded).Error)

	_, err := s.invitations.Respond(s.ctx, as(invitee), invitation.ID, models.InvitationDecisionAccept)
	s.ErrorIs(err, ErrAlreadyResolved)
	s.Equal(constants.ReasonGroupDisbanded, *s.reloadInvitation(invitation.ID).ResolutionReason)
}

func (s *EngineTestSuite) TestListForGroup_Access() {
	leader := s.student("alice")
	invitee := s.student("bob")
	outsider := s.student("eve")
	admin := s.admin()
	group := s.createGroup(leader, 3)
	s.invite(group, leader, invitee)

	_, err := s.invitations.ListForGroup(s.ctx, as(outsider), group.ID)
	s.ErrorIs(err, ErrNotMember)

	for _, p := range []Principal{as(leader), as(admin)} {
		listed, err := s.invitations.ListForGroup(s.ctx, p, group.ID)
		s.Require().NoError(err)
		s.Require().Len(listed, 1)
		s.Equal(invitee.ID, listed[0].Invitee.ID)
	}
}
