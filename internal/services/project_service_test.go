package services

import (
	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/models"
)

func (s *EngineTestSuite) TestRegisterProject_Preconditions() {
	leader := s.student("alice")
	member := s.student("bob")
	faculty := s.faculty("prof", 3)
	group := s.createGroup(leader, 3)
	s.join(group, leader, member)

	ids := []uint64{faculty[0].ID, faculty[1].ID}
	register := func(p Principal, title string, ranked []uint64) error {
		_, err := s.projects.RegisterProject(s.ctx, p, RegisterProjectInput{
			GroupID:          group.ID,
			Title:            title,
			RankedFacultyIDs: ranked,
		})
		return err
	}

	s.ErrorIs(register(as(leader), "Robotics", ids), ErrNotFinalized)

	_, err := s.groups.FinalizeGroup(s.ctx, as(leader), group.ID)
	s.Require().NoError(err)

	s.ErrorIs(register(as(member), "Robotics", ids), ErrNotLeader)
	s.ErrorIs(register(as(faculty[0]), "Robotics", ids), ErrNotAuthorized)
	s.ErrorIs(register(as(leader), "   ", ids), ErrInvalidTitle)
	s.ErrorIs(register(as(leader), "Robotics", []uint64{faculty[0].ID}), ErrInvalidPreferenceCount)
	s.ErrorIs(register(as(leader), "Robotics", []uint64{faculty[0].ID, faculty[0].ID}), ErrInvalidPreferenceCount)
	s.ErrorIs(register(as(leader), "Robotics", []uint64{faculty[0].ID, member.ID}), ErrInvalidFaculty)
	s.ErrorIs(register(as(leader), "Robotics", []uint64{faculty[0].ID, 999}), ErrInvalidFaculty)

	s.Equal(models.GroupStatusFinalized, s.reloadGroup(group.ID).Status)

	s.Require().NoError(register(as(leader), "Robotics", ids))
	s.ErrorIs(register(as(leader), "Robotics again", ids), ErrProjectAlreadyRegistered)
}

func (s *EngineTestSuite) TestRegisterProject_StartsCascadeAndLocksGroup() {
	leader := s.student("alice")
	faculty := s.faculty("prof", 3)
	s.recorder.Reset()

	project := s.registeredProject(leader, faculty...)

	s.Equal(models.AllocationStatusPending, project.AllocationStatus)
	s.Equal(0, project.CurrentPreferenceIndex)
	s.Nil(project.AllocatedFacultyID)
	s.Equal([]uint64{faculty[0].ID, faculty[1].ID, faculty[2].ID}, project.RankedFacultyIDs())

	group := s.reloadGroup(project.GroupID)
	s.Equal(models.GroupStatusLocked, group.Status)
	s.NotNil(group.LockedAt)

	s.Len(s.recorder.OfType(events.TypeProjectRegistered), 1)
	pending := s.recorder.OfType(events.TypePendingDecision)
	s.Require().Len(pending, 1)
	s.True(hasUserAudience(pending[0], faculty[0].ID))

	s.Equal([]uint64{project.ID}, s.pendingIDs(faculty[0]))
	s.Empty(s.pendingIDs(faculty[1]))
}

func (s *EngineTestSuite) TestRegisterProject_SemesterPreferenceBounds() {
	leader := s.student("alice")
	members := s.students("member", 3)
	faculty := s.faculty("prof", 3)
	group := s.createGroup(leader, capstoneSemester)
	s.join(group, leader, members...)
	_, err := s.groups.FinalizeGroup(s.ctx, as(leader), group.ID)
	s.Require().NoError(err)

	_, err = s.projects.RegisterProject(s.ctx, as(leader), RegisterProjectInput{
		GroupID:          group.ID,
		Title:            "Capstone",
		RankedFacultyIDs: []uint64{faculty[0].ID, faculty[1].ID},
	})
	s.ErrorIs(err, ErrInvalidPreferenceCount)
}

func (s *EngineTestSuite) TestGetProject_Access() {
	leader := s.student("alice")
	outsider := s.student("eve")
	faculty := s.faculty("prof", 3)
	admin := s.admin()
	project := s.registeredProject(leader, faculty[0], faculty[1])

	for _, p := range []Principal{as(leader), as(faculty[1]), as(admin)} {
		got, err := s.projects.GetProject(s.ctx, p, project.ID)
		s.Require().NoError(err)
		s.Equal(project.ID, got.ID)
	}

	_, err := s.projects.GetProject(s.ctx, as(outsider), project.ID)
	s.ErrorIs(err, ErrNotMember)

	_, err = s.projects.GetProject(s.ctx, as(faculty[2]), project.ID)
	s.ErrorIs(err, ErrNotAuthorized)

	_, err = s.projects.GetProject(s.ctx, as(admin), 999)
	s.ErrorIs(err, ErrProjectNotFound)
}
