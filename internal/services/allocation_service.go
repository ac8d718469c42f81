package services

import (
	"context"
	"fmt"
	"time"

	"github.com/yukikurage/project-allocation-api/internal/events"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/repository"
	"github.com/yukikurage/project-allocation-api/internal/utils"
	"go.uber.org/zap"
)

// AllocationService runs the choose/pass cascade over a project's preference
// list and the admin override.
type AllocationService struct {
	engine
}

// NewAllocationService creates a new AllocationService.
func NewAllocationService(deps Dependencies) *AllocationService {
	return &AllocationService{engine: newEngine(deps)}
}

// Choose assigns the project to the faculty holding the cursor.
func (s *AllocationService) Choose(ctx context.Context, p Principal, projectID uint64) (*models.Project, error) {
	return s.decide(ctx, p, projectID, models.FacultyDecisionChosen)
}

// Pass hands the project to the next preference, or exhausts the cascade.
func (s *AllocationService) Pass(ctx context.Context, p Principal, projectID uint64) (*models.Project, error) {
	return s.decide(ctx, p, projectID, models.FacultyDecisionPassed)
}

func (s *AllocationService) decide(ctx context.Context, p Principal, projectID uint64, decision models.FacultyDecision) (*models.Project, error) {
	if err := p.require(models.UserRoleFaculty); err != nil {
		return nil, err
	}

	unlock := s.Locks.Lock(projectKey(projectID))
	defer unlock()

	var (
		project *models.Project
		outcome cascadeOutcome
		waited  time.Duration
	)
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		project, err = tx.Projects().FindByID(projectID)
		if err != nil {
			return notFound(err, ErrProjectNotFound, "find project")
		}

		now := s.Now()
		waited = now.Sub(project.CursorAdvancedAt)

		var record models.AllocationDecision
		record, outcome, err = applyDecision(project, p.UserID, decision, now)
		if err != nil {
			return err
		}
		if err := tx.Projects().AppendDecision(&record); err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
		// Another instance moved the cursor first.
		if err := tx.Projects().UpdateAllocation(project); err != nil {
			return conflict(err, ErrNotCurrentPreference, "update allocation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.Decision(string(decision), waited)
	s.Log.Info("faculty decision recorded",
		zap.Uint64("project_id", project.ID),
		zap.Uint64("faculty_id", p.UserID),
		zap.String("decision", string(decision)),
		zap.String("allocation_status", string(project.AllocationStatus)),
		zap.Int("cursor", project.CurrentPreferenceIndex),
	)

	ranked := project.RankedFacultyIDs()
	switch outcome {
	case outcomeAllocated:
		others := make([]uint64, 0, len(ranked))
		for _, id := range ranked {
			if id != p.UserID {
				others = append(others, id)
			}
		}
		s.emit(events.Event{
			Type:      events.TypeGroupAllocation,
			GroupID:   project.GroupID,
			ProjectID: project.ID,
			ActorID:   p.UserID,
			Payload: map[string]interface{}{
				"status":     string(models.AllocationStatusAllocated),
				"faculty_id": p.UserID,
				"manual":     false,
			},
			Audience: append([]events.Audience{events.ToGroup(project.GroupID)}, events.ToUsers(others...)...),
		})
	case outcomeAdvanced, outcomeExhausted:
		s.emit(events.Event{
			Type:      events.TypeFacultyResponse,
			GroupID:   project.GroupID,
			ProjectID: project.ID,
			ActorID:   p.UserID,
			Payload: map[string]interface{}{
				"response":   string(models.FacultyDecisionPassed),
				"faculty_id": p.UserID,
			},
			Audience: []events.Audience{events.ToGroup(project.GroupID)},
		})
		if outcome == outcomeAdvanced {
			s.emit(pendingDecisionEvent(project, ranked[project.CurrentPreferenceIndex]))
			break
		}
		s.Log.Warn("allocation cascade exhausted", zap.Uint64("project_id", project.ID))
		s.emit(events.Event{
			Type:      events.TypeAllocationExhausted,
			GroupID:   project.GroupID,
			ProjectID: project.ID,
			Payload:   map[string]interface{}{"title": project.Title},
			Audience:  []events.Audience{events.ToAdmins()},
		})
	}

	return project, nil
}

// ForceAllocate lets an admin assign any faculty member, bypassing the cursor.
func (s *AllocationService) ForceAllocate(ctx context.Context, p Principal, projectID, facultyID uint64) (*models.Project, error) {
	if err := p.require(models.UserRoleAdmin); err != nil {
		return nil, err
	}

	faculty, err := s.Store.WithContext(ctx).Users().FindByID(facultyID)
	if err != nil {
		return nil, notFound(err, ErrFacultyNotFound, "find faculty")
	}
	if faculty.Role != models.UserRoleFaculty {
		return nil, ErrInvalidFaculty
	}

	unlock := s.Locks.Lock(projectKey(projectID))
	defer unlock()

	var (
		project   *models.Project
		preempted uint64
	)
	err = s.Store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		project, err = tx.Projects().FindByID(projectID)
		if err != nil {
			return notFound(err, ErrProjectNotFound, "find project")
		}

		if current, ok := project.CurrentFacultyID(); ok {
			preempted = current
		}
		if err := applyOverride(project, facultyID, p.UserID, s.AllowPreemptiveOverride, s.Now()); err != nil {
			return err
		}
		if err := tx.Projects().UpdateAllocation(project); err != nil {
			return conflict(err, ErrConflict, "force allocation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.Decision("manual", -1)
	s.Log.Info("project allocated by admin",
		zap.Uint64("project_id", project.ID),
		zap.Uint64("faculty_id", facultyID),
		zap.Uint64("admin_id", p.UserID),
		zap.Bool("preempted", preempted != 0),
	)

	audience := []events.Audience{events.ToGroup(project.GroupID), events.ToUser(facultyID)}
	if preempted != 0 && preempted != facultyID {
		audience = append(audience, events.ToUser(preempted))
	}
	s.emit(events.Event{
		Type:      events.TypeGroupAllocation,
		GroupID:   project.GroupID,
		ProjectID: project.ID,
		ActorID:   p.UserID,
		Payload: map[string]interface{}{
			"status":     string(models.AllocationStatusAllocated),
			"faculty_id": facultyID,
			"manual":     true,
		},
		Audience: audience,
	})

	return project, nil
}

// PendingForFaculty lists the projects awaiting the calling faculty's decision.
func (s *AllocationService) PendingForFaculty(ctx context.Context, p Principal) ([]models.Project, error) {
	if err := p.require(models.UserRoleFaculty); err != nil {
		return nil, err
	}
	projects, err := s.Store.WithContext(ctx).Projects().ListPendingForFaculty(p.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending projects: %w", err)
	}
	return projects, nil
}

// ListByStatus lists one page of projects in an allocation status for admins.
func (s *AllocationService) ListByStatus(ctx context.Context, p Principal, status models.AllocationStatus, page utils.PaginationParams) ([]models.Project, int64, error) {
	if err := p.require(models.UserRoleAdmin); err != nil {
		return nil, 0, err
	}
	switch status {
	case models.AllocationStatusPending, models.AllocationStatusAllocated,
		models.AllocationStatusExhausted, models.AllocationStatusManuallyAllocated:
	default:
		return nil, 0, ErrInvalidStatus
	}

	projects, total, err := s.Store.WithContext(ctx).Projects().ListByStatus(status, page)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, total, nil
}

// Stalled lists pending projects whose cursor has not moved for olderThan.
// It is a report; nothing times out.
func (s *AllocationService) Stalled(ctx context.Context, p Principal, olderThan time.Duration) ([]models.Project, error) {
	if err := p.require(models.UserRoleAdmin); err != nil {
		return nil, err
	}
	if olderThan <= 0 {
		return nil, ErrInvalidDuration
	}

	projects, err := s.Store.WithContext(ctx).Projects().ListStalled(s.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled projects: %w", err)
	}
	return projects, nil
}
