package services

import (
	"errors"
	"sync"
	"time"

	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/utils"
)

func (s *EngineTestSuite) TestCascade_CapstoneHappyPath() {
	leader := s.student("alice")
	members := s.students("member", 3)
	faculty := s.faculty("prof", 3)
	group := s.createGroup(leader, capstoneSemester)
	s.join(group, leader, members...)
	_, err := s.groups.FinalizeGroup(s.ctx, as(leader), group.ID)
	s.Require().NoError(err)

	project, err := s.projects.RegisterProject(s.ctx, as(leader), RegisterProjectInput{
		GroupID:          group.ID,
		Title:            "Campus energy dashboard",
		RankedFacultyIDs: []uint64{faculty[0].ID, faculty[1].ID, faculty[2].ID},
	})
	s.Require().NoError(err)
	s.Empty(s.pendingIDs(faculty[2]))

	_, err = s.allocation.Pass(s.ctx, as(faculty[0]), project.ID)
	s.Require().NoError(err)
	s.Empty(s.pendingIDs(faculty[2]))

	s.recorder.Reset()
	allocated, err := s.allocation.Choose(s.ctx, as(faculty[1]), project.ID)
	s.Require().NoError(err)
	s.Equal(models.AllocationStatusAllocated, allocated.AllocationStatus)
	s.Equal(faculty[1].ID, *allocated.AllocatedFacultyID)
	s.Equal(1, allocated.CurrentPreferenceIndex)
	s.Empty(s.pendingIDs(faculty[2]))
	s.Empty(s.pendingIDs(faculty[1]))

	responses := s.recorder.OfType(events.TypeGroupAllocation)
	s.Require().Len(responses, 1)
	s.Equal([]events.Audience{events.ToGroup(group.ID)}, responses[0].Audience[:1])
}

func (s *EngineTestSuite) TestCascade_AdvanceAndExhaust() {
	leader := s.student("alice")
	faculty := s.faculty("prof", 3)
	project := s.registeredProject(leader, faculty...)

	_, err := s.allocation.Choose(s.ctx, as(faculty[1]), project.ID)
	s.ErrorIs(err, ErrNotCurrentPreference)

	_, err = s.allocation.Choose(s.ctx, as(leader), project.ID)
	s.ErrorIs(err, ErrNotAuthorized)

	passed, err := s.allocation.Pass(s.ctx, as(faculty[0]), project.ID)
	s.Require().NoError(err)
	s.Equal(1, passed.CurrentPreferenceIndex)
	s.Equal(models.AllocationStatusPending, passed.AllocationStatus)

	_, err = s.allocation.Choose(s.ctx, as(faculty[0]), project.ID)
	s.ErrorIs(err, ErrNotCurrentPreference)
	_, err = s.allocation.Pass(s.ctx, as(faculty[0]), project.ID)
	s.ErrorIs(err, ErrNotCurrentPreference)

	s.Empty(s.pendingIDs(faculty[0]))
	s.Equal([]uint64{project.ID}, s.pendingIDs(faculty[1]))

	_, err = s.allocation.Pass(s.ctx, as(faculty[1]), project.ID)
	s.Require().NoError(err)
	exhausted, err := s.allocation.Pass(s.ctx, as(faculty[2]), project.ID)
	s.Require().NoError(err)
	s.Equal(models.AllocationStatusExhausted, exhausted.AllocationStatus)
	s.Nil(exhausted.AllocatedFacultyID)

	_, err = s.allocation.Choose(s.ctx, as(faculty[2]), project.ID)
	s.ErrorIs(err, ErrAlreadyResolved)

	reloaded, err := s.store.Projects().FindByID(project.ID)
	s.Require().NoError(err)
	s.Require().Len(reloaded.Decisions, 3)
	s.Equal(len(reloaded.Decisions), reloaded.CurrentPreferenceIndex)
	for i, d := range reloaded.Decisions {
		s.Equal(models.FacultyDecisionPassed, d.Decision)
		s.Equal(i, d.Position)
		s.Equal(faculty[i].ID, d.FacultyID)
	}

	alerts := s.recorder.OfType(events.TypeAllocationExhausted)
	s.Require().Len(alerts, 1)
	s.Equal([]events.Audience{events.ToAdmins()}, alerts[0].Audience)
}

func (s *EngineTestSuite) TestCascade_ChooseIsFinal() {
	leader := s.student("alice")
	faculty := s.faculty("prof", 3)
	project := s.registeredProject(leader, faculty...)
	s.recorder.Reset()

	chosen, err := s.allocation.Choose(s.ctx, as(faculty[0]), project.ID)
	s.Require().NoError(err)
	s.Equal(models.AllocationStatusAllocated, chosen.AllocationStatus)
	s.Require().NotNil(chosen.AllocatedFacultyID)
	s.Equal(faculty[0].ID, *chosen.AllocatedFacultyID)

	_, err = s.allocation.Choose(s.ctx, as(faculty[0]), project.ID)
	s.ErrorIs(err, ErrAlreadyResolved)
	_, err = s.allocation.Pass(s.ctx, as(faculty[0]), project.ID)
	s.ErrorIs(err, ErrAlreadyResolved)

	allocations := s.recorder.OfType(events.TypeGroupAllocation)
	s.Require().Len(allocations, 1)
	s.True(hasUserAudience(allocations[0], faculty[1].ID))
	s.True(hasUserAudience(allocations[0], faculty[2].ID))
	s.False(hasUserAudience(allocations[0], faculty[0].ID))
	s.Equal(false, allocations[0].Payload["manual"])
}

func (s *EngineTestSuite) TestCascade_ConcurrentDecisionsSingleWriter() {
	leader := s.student("alice")
	faculty := s.faculty("prof", 2)
	project := s.registeredProject(leader, faculty...)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	decisions := []func() error{
		func() error { _, err := s.allocation.Choose(s.ctx, as(faculty[0]), project.ID); return err },
		func() error { _, err := s.allocation.Pass(s.ctx, as(faculty[0]), project.ID); return err },
	}
	for i := range decisions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = decisions[i]()
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			s.True(errors.Is(err, ErrAlreadyResolved) || errors.Is(err, ErrNotCurrentPreference), err.Error())
		}
	}
	s.Equal(1, failed)

	reloaded, err := s.store.Projects().FindByID(project.ID)
	s.Require().NoError(err)
	s.Len(reloaded.Decisions, 1)
}

func (s *EngineTestSuite) TestForceAllocate() {
	leader := s.student("alice")
	faculty := s.faculty("prof", 3)
	admin := s.admin()
	project := s.registeredProject(leader, faculty[0], faculty[1])

	_, err := s.allocation.ForceAllocate(s.ctx, as(faculty[2]), project.ID, faculty[2].ID)
	s.ErrorIs(err, ErrNotAuthorized)
	_, err = s.allocation.ForceAllocate(s.ctx, as(admin), project.ID, leader.ID)
	s.ErrorIs(err, ErrInvalidFaculty)
	_, err = s.allocation.ForceAllocate(s.ctx, as(admin), project.ID, 999)
	s.ErrorIs(err, ErrFacultyNotFound)
	_, err = s.allocation.ForceAllocate(s.ctx, as(admin), 999, faculty[2].ID)
	s.ErrorIs(err, ErrProjectNotFound)

	s.recorder.Reset()
	allocated, err := s.allocation.ForceAllocate(s.ctx, as(admin), project.ID, faculty[2].ID)
	s.Require().NoError(err)
	s.Equal(models.AllocationStatusManuallyAllocated, allocated.AllocationStatus)
	s.Equal(faculty[2].ID, *allocated.AllocatedFacultyID)
	s.Equal(admin.ID, *allocated.AllocatedByAdminID)

	// The preempted faculty is told to clear the project from their view.
	allocations := s.recorder.OfType(events.TypeGroupAllocation)
	s.Require().Len(allocations, 1)
	s.True(hasUserAudience(allocations[0], faculty[0].ID))
	s.Equal(true, allocations[0].Payload["manual"])

	s.Empty(s.pendingIDs(faculty[0]))
	_, err = s.allocation.Pass(s.ctx, as(faculty[0]), project.ID)
	s.ErrorIs(err, ErrAlreadyResolved)
	_, err = s.allocation.ForceAllocate(s.ctx, as(admin), project.ID, faculty[1].ID)
	s.ErrorIs(err, ErrAlreadyResolved)
}

func (s *EngineTestSuite) TestForceAllocate_PreemptionDisabled() {
	deps := s.deps
	deps.AllowPreemptiveOverride = false
	allocation := NewAllocationService(deps)

	leader := s.student("alice")
	faculty := s.faculty("prof", 3)
	admin := s.admin()
	project := s.registeredProject(leader, faculty[0], faculty[1])

	_, err := allocation.ForceAllocate(s.ctx, as(admin), project.ID, faculty[2].ID)
	s.ErrorIs(err, ErrCascadeInProgress)

	for _, f := range faculty[:2] {
		_, err := allocation.Pass(s.ctx, as(f), project.ID)
		s.Require().NoError(err)
	}

	allocated, err := allocation.ForceAllocate(s.ctx, as(admin), project.ID, faculty[2].ID)
	s.Require().NoError(err)
	s.Equal(models.AllocationStatusManuallyAllocated, allocated.AllocationStatus)
}

func (s *EngineTestSuite) TestStalledAndListByStatus() {
	leader := s.student("alice")
	other := s.student("bob")
	faculty := s.faculty("prof", 2)
	admin := s.admin()
	waiting := s.registeredProject(leader, faculty...)
	s.clock.Advance(72 * time.Hour)
	moving := s.registeredProject(other, faculty...)

	stalled, err := s.allocation.Stalled(s.ctx, as(admin), 48*time.Hour)
	s.Require().NoError(err)
	s.Require().Len(stalled, 1)
	s.Equal(waiting.ID, stalled[0].ID)

	_, err = s.allocation.Stalled(s.ctx, as(admin), 0)
	s.ErrorIs(err, ErrInvalidDuration)
	_, err = s.allocation.Stalled(s.ctx, as(faculty[0]), time.Hour)
	s.ErrorIs(err, ErrNotAuthorized)

	_, err = s.allocation.Choose(s.ctx, as(faculty[0]), moving.ID)
	s.Require().NoError(err)

	firstPage := utils.PaginationParams{Page: 1, Limit: 20}
	pending, total, err := s.allocation.ListByStatus(s.ctx, as(admin), models.AllocationStatusPending, firstPage)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(pending, 1)
	s.Equal(waiting.ID, pending[0].ID)

	allocated, _, err := s.allocation.ListByStatus(s.ctx, as(admin), models.AllocationStatusAllocated, firstPage)
	s.Require().NoError(err)
	s.Require().Len(allocated, 1)
	s.Equal(moving.ID, allocated[0].ID)

	_, _, err = s.allocation.ListByStatus(s.ctx, as(admin), "finished", firstPage)
	s.ErrorIs(err, ErrInvalidStatus)
}
