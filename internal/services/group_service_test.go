package services

import (
	"github.com/yukikurage/project-allocation-api/internal/constants"
	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"gorm.io/gorm"
)

func (s *EngineTestSuite) TestCreateGroup_SnapshotsSemesterRules() {
	leader := s.student("alice")

	group := s.createGroup(leader, capstoneSemester)

	s.Equal(models.GroupStatusForming, group.Status)
	s.Equal(4, group.MinMembers)
	s.Equal(5, group.MaxMembers)
	s.Require().Len(group.ActiveMembers(), 1)
	s.Equal(models.MemberRoleLeader, group.ActiveMembers()[0].Role)
}

func (s *EngineTestSuite) TestCreateGroup_Validation() {
	leader := s.student("alice")
	faculty := s.faculty("prof", 1)[0]

	tests := []struct {
		name  string
		p     Principal
		input CreateGroupInput
		want  error
	}{
		{"faculty cannot lead", as(faculty), CreateGroupInput{Name: "G", Semester: 3, AcademicYear: "2026"}, ErrNotAuthorized},
		{"blank name", as(leader), CreateGroupInput{Name: "  ", Semester: 3, AcademicYear: "2026"}, ErrInvalidGroupName},
		{"zero semester", as(leader), CreateGroupInput{Name: "G", Semester: 0, AcademicYear: "2026"}, ErrInvalidSemester},
		{"missing year", as(leader), CreateGroupInput{Name: "G", Semester: 3}, ErrInvalidAcademicYear},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.groups.CreateGroup(s.ctx, tt.p, tt.input)
			s.ErrorIs(err, tt.want)
		})
	}
}

func (s *EngineTestSuite) TestCreateGroup_OneActiveGroupPerSemester() {
	leader := s.student("alice")
	s.createGroup(leader, 3)

	_, err := s.groups.CreateGroup(s.ctx, as(leader), CreateGroupInput{Name: "Second", Semester: 3, AcademicYear: "2026-2027"})
	s.ErrorIs(err, ErrAlreadyMember)

	// A different semester is allowed.
	s.createGroup(leader, 4)
}

func (s *EngineTestSuite) TestFinalize_BelowMinimum() {
	leader := s.student("alice")
	members := s.students("member", 2)
	group := s.createGroup(leader, capstoneSemester)
	s.join(group, leader, members...)

	_, err := s.groups.FinalizeGroup(s.ctx, as(leader), group.ID)
	s.ErrorIs(err, ErrBelowMinimum)
	s.Equal(models.GroupStatusOpen, s.reloadGroup(group.ID).Status)
}

func (s *EngineTestSuite) TestFinalize_OnlyLeader() {
	leader := s.student("alice")
	member := s.student("bob")
	group := s.createGroup(leader, 3)
	s.join(group, leader, member)

	_, err := s.groups.FinalizeGroup(s.ctx, as(member), group.ID)
	s.ErrorIs(err, ErrNotLeader)

	_, err = s.groups.FinalizeGroup(s.ctx, as(leader), 999)
	s.ErrorIs(err, ErrGroupNotFound)
}

func (s *EngineTestSuite) TestFinalize_AutoRejectsPendingAndClosesInvitations() {
	leader := s.student("alice")
	invitees := s.students("invitee", 2)
	late := s.student("late")
	group := s.createGroup(leader, 3)
	first := s.invite(group, leader, invitees[0])
	second := s.invite(group, leader, invitees[1])
	s.recorder.Reset()

	finalized, err := s.groups.FinalizeGroup(s.ctx, as(leader), group.ID)
	s.Require().NoError(err)
	s.Equal(models.GroupStatusFinalized, finalized.Status)
	s.NotNil(finalized.FinalizedAt)

	for _, id := range []uint64{first.ID, second.ID} {
		inv := s.reloadInvitation(id)
		s.Equal(models.InvitationStatusAutoRejected, inv.Status)
		s.Require().NotNil(inv.ResolutionReason)
		s.Equal(constants.ReasonGroupFinalized, *inv.ResolutionReason)
	}

	updates := s.recorder.OfType(events.TypeInvitationUpdate)
	s.Len(updates, 2)
	for _, e := range updates {
		s.Equal("auto_rejected", e.Payload["type"])
		s.Equal(constants.ReasonCodeGroupFinalized, e.Payload["reason_code"])
	}
	s.Len(s.recorder.OfType(events.TypeGroupFinalized), 1)

	_, err = s.invitations.CreateInvitation(s.ctx, as(leader), CreateInvitationInput{GroupID: group.ID, InviteeID: late.ID})
	s.ErrorIs(err, ErrGroupNotOpen)

	_, err = s.groups.FinalizeGroup(s.ctx, as(leader), group.ID)
	s.ErrorIs(err, ErrInvalidGroupState)
}

func (s *EngineTestSuite) TestRemoveMember() {
	leader := s.student("alice")
	members := s.students("member", 2)
	group := s.createGroup(leader, 3)
	s.join(group, leader, members...)

	_, err := s.groups.RemoveMember(s.ctx, as(members[0]), group.ID, members[1].ID)
	s.ErrorIs(err, ErrNotLeader)

	_, err = s.groups.RemoveMember(s.ctx, as(leader), group.ID, leader.ID)
	s.ErrorIs(err, ErrCannotRemoveLeader)

	updated, err := s.groups.RemoveMember(s.ctx, as(leader), group.ID, members[1].ID)
	s.Require().NoError(err)
	s.Len(updated.ActiveMembers(), 2)
	s.False(updated.HasActiveMember(members[1].ID))

	_, err = s.groups.RemoveMember(s.ctx, as(leader), group.ID, members[1].ID)
	s.ErrorIs(err, ErrMemberNotFound)

	removed := s.recorder.OfType(events.TypeMemberRemoved)
	s.Require().Len(removed, 1)
	s.True(hasUserAudience(removed[0], members[1].ID))

	// The removed student can join another group this semester.
	other := s.student("carol")
	otherGroup := s.createGroup(other, 3)
	s.join(otherGroup, other, members[1])
}

func (s *EngineTestSuite) TestLeaveGroup() {
	leader := s.student("alice")
	member := s.student("bob")
	outsider := s.student("eve")
	group := s.createGroup(leader, 3)
	s.join(group, leader, member)

	s.ErrorIs(s.groups.LeaveGroup(s.ctx, as(leader), group.ID), ErrCannotRemoveLeader)
	s.ErrorIs(s.groups.LeaveGroup(s.ctx, as(outsider), group.ID), ErrNotMember)

	s.Require().NoError(s.groups.LeaveGroup(s.ctx, as(member), group.ID))
	s.False(s.reloadGroup(group.ID).HasActiveMember(member.ID))
	s.Len(s.recorder.OfType(events.TypeMemberLeft), 1)
}

func (s *EngineTestSuite) TestMembershipFrozenAfterFinalize() {
	leader := s.student("alice")
	member := s.student("bob")
	group := s.createGroup(leader, 3)
	s.join(group, leader, member)
	_, err := s.groups.FinalizeGroup(s.ctx, as(leader), group.ID)
	s.Require().NoError(err)

	_, err = s.groups.RemoveMember(s.ctx, as(leader), group.ID, member.ID)
	s.ErrorIs(err, ErrInvalidGroupState)
	s.ErrorIs(s.groups.LeaveGroup(s.ctx, as(member), group.ID), ErrInvalidGroupState)
}

func (s *EngineTestSuite) TestDisband_ReleasesMembersAndRejectsPending() {
	leader := s.student("alice")
	member := s.student("bob")
	invitee := s.student("carol")
	group := s.createGroup(leader, 3)
	s.join(group, leader, member)
	pending := s.invite(group, leader, invitee)

	s.ErrorIs(s.groups.DisbandGroup(s.ctx, as(member), group.ID), ErrNotLeader)
	s.Require().NoError(s.groups.DisbandGroup(s.ctx, as(leader), group.ID))

	reloaded := s.reloadGroup(group.ID)
	s.Equal(models.GroupStatusDisbanded, reloaded.Status)
	s.Empty(reloaded.ActiveMembers())

	_, err := s.store.Groups().FindActiveMembership(member.ID, 3)
	s.ErrorIs(err, gorm.ErrRecordNotFound)

	inv := s.reloadInvitation(pending.ID)
	s.Equal(models.InvitationStatusAutoRejected, inv.Status)
	s.Equal(constants.ReasonGroupDisbanded, *inv.ResolutionReason)

	disbanded := s.recorder.OfType(events.TypeGroupDisbanded)
	s.Require().Len(disbanded, 1)
	s.True(hasUserAudience(disbanded[0], leader.ID))
	s.True(hasUserAudience(disbanded[0], member.ID))

	s.ErrorIs(s.groups.DisbandGroup(s.ctx, as(leader), group.ID), ErrInvalidGroupState)
}

func (s *EngineTestSuite) TestDisband_LockedGroupRejected() {
	leader := s.student("alice")
	faculty := s.faculty("prof", 2)
	project := s.registeredProject(leader, faculty...)

	err := s.groups.DisbandGroup(s.ctx, as(leader), project.GroupID)
	s.ErrorIs(err, ErrProjectAlreadyRegistered)

	_, err = s.groups.RemoveMember(s.ctx, as(leader), project.GroupID, leader.ID+100)
	s.ErrorIs(err, ErrProjectAlreadyRegistered)
}

func (s *EngineTestSuite) TestGetGroup_RankedFacultyOnly() {
	leader := s.student("alice")
	profs := s.faculty("prof", 3)
	project := s.registeredProject(leader, profs[0], profs[1])

	for _, prof := range profs[:2] {
		got, err := s.groups.GetGroup(s.ctx, as(prof), project.GroupID)
		s.Require().NoError(err)
		s.Equal(project.GroupID, got.ID)
	}

	_, err := s.groups.GetGroup(s.ctx, as(profs[2]), project.GroupID)
	s.ErrorIs(err, ErrNotAuthorized)
}

func (s *EngineTestSuite) TestGetGroup_Access() {
	leader := s.student("alice")
	outsider := s.student("eve")
	prof := s.faculty("prof", 1)[0]
	group := s.createGroup(leader, 3)

	_, err := s.groups.GetGroup(s.ctx, as(outsider), group.ID)
	s.ErrorIs(err, ErrNotMember)

	admin := s.admin()
	got, err := s.groups.GetGroup(s.ctx, as(admin), group.ID)
	s.Require().NoError(err)
	s.Equal(group.ID, got.ID)

	// Faculty see a group only once it ranks them on a registered project.
	_, err = s.groups.GetGroup(s.ctx, as(prof), group.ID)
	s.ErrorIs(err, ErrNotAuthorized)

	semester := 3
	mine, err := s.groups.ListMyGroups(s.ctx, as(leader), &semester)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(group.ID, mine[0].ID)
}
