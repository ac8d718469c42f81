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

// ProjectService registers a finalized group's project and its preference list.
type ProjectService struct {
	engine
	groups *GroupService
}

// NewProjectService creates a new ProjectService.
func NewProjectService(deps Dependencies, groups *GroupService) *ProjectService {
	return &ProjectService{
		engine: newEngine(deps),
		groups: groups,
	}
}

// RegisterProjectInput represents parameters to register a project.
type RegisterProjectInput struct {
	GroupID          uint64
	Title            string
	Domain           string
	RankedFacultyIDs []uint64
}

// RegisterProject creates the project, starts its allocation cascade at the
// first preference and locks the group.
func (s *ProjectService) RegisterProject(ctx context.Context, p Principal, input RegisterProjectInput) (*models.Project, error) {
	if err := p.require(models.UserRoleStudent); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > constants.MaxProjectTitleLen {
		return nil, ErrInvalidTitle
	}

	unlock := s.Locks.Lock(groupKey(input.GroupID))
	defer unlock()

	var project *models.Project
	err := s.Store.Transaction(ctx, func(tx repository.Store) error {
		group, err := tx.Groups().FindByID(input.GroupID)
		if err != nil {
			return notFound(err, ErrGroupNotFound, "find group")
		}
		switch group.Status {
		case models.GroupStatusFinalized:
		case models.GroupStatusLocked:
			return ErrProjectAlreadyRegistered
		default:
			return ErrNotFinalized
		}
		if group.LeaderID != p.UserID {
			return ErrNotLeader
		}

		rules := s.Rules.ForSemester(group.Semester)
		if err := validatePreferences(input.RankedFacultyIDs, rules.MinPreferences, rules.MaxPreferences); err != nil {
			return err
		}
		if err := s.checkFaculty(tx, input.RankedFacultyIDs); err != nil {
			return err
		}

		now := s.Now()
		project = &models.Project{
			GroupID:                group.ID,
			Title:                  title,
			Domain:                 strings.TrimSpace(input.Domain),
			CurrentPreferenceIndex: 0,
			AllocationStatus:       models.AllocationStatusPending,
			CursorAdvancedAt:       now,
			Version:                1,
		}
		for i, facultyID := range input.RankedFacultyIDs {
			project.Preferences = append(project.Preferences, models.FacultyPreference{
				Position:  i,
				FacultyID: facultyID,
			})
		}
		if err := tx.Projects().Create(project); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrProjectAlreadyRegistered
			}
			return fmt.Errorf("failed to create project: %w", err)
		}

		return s.groups.lock(tx, group)
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.GroupTransition(string(models.GroupStatusLocked))
	s.Log.Info("project registered",
		zap.Uint64("project_id", project.ID),
		zap.Uint64("group_id", project.GroupID),
		zap.Int("preferences", len(input.RankedFacultyIDs)),
	)
	s.emit(events.Event{
		Type:      events.TypeProjectRegistered,
		GroupID:   project.GroupID,
		ProjectID: project.ID,
		ActorID:   p.UserID,
		Payload:   map[string]interface{}{"title": project.Title},
		Audience:  []events.Audience{events.ToGroup(project.GroupID)},
	})
	s.emit(pendingDecisionEvent(project, input.RankedFacultyIDs[0]))

	return s.Store.WithContext(ctx).Projects().FindByID(project.ID)
}

// validatePreferences checks the list length against the semester bounds and
// rejects repeated faculty.
func validatePreferences(ids []uint64, minCount, maxCount int) error {
	if len(ids) < minCount || len(ids) > maxCount {
		return ErrInvalidPreferenceCount
	}
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return ErrInvalidPreferenceCount
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (s *ProjectService) checkFaculty(tx repository.Store, ids []uint64) error {
	users, err := tx.Users().FindByIDs(ids)
	if err != nil {
		return fmt.Errorf("failed to load faculty: %w", err)
	}
	if len(users) != len(ids) {
		return ErrInvalidFaculty
	}
	for _, u := range users {
		if u.Role != models.UserRoleFaculty {
			return ErrInvalidFaculty
		}
	}
	return nil
}

// GetProject returns a project to group members, faculty on its list and admins.
func (s *ProjectService) GetProject(ctx context.Context, p Principal, projectID uint64) (*models.Project, error) {
	store := s.Store.WithContext(ctx)
	project, err := store.Projects().FindByID(projectID)
	if err != nil {
		return nil, notFound(err, ErrProjectNotFound, "find project")
	}

	switch p.Role {
	case models.UserRoleAdmin:
	case models.UserRoleFaculty:
		if !containsID(project.RankedFacultyIDs(), p.UserID) {
			return nil, ErrNotAuthorized
		}
	case models.UserRoleStudent:
		group, err := store.Groups().FindByID(project.GroupID)
		if err != nil {
			return nil, notFound(err, ErrGroupNotFound, "find group")
		}
		if !group.HasActiveMember(p.UserID) {
			return nil, ErrNotMember
		}
	default:
		return nil, ErrNotAuthorized
	}

	return project, nil
}

func containsID(ids []uint64, id uint64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func pendingDecisionEvent(project *models.Project, facultyID uint64) events.Event {
	return events.Event{
		Type:      events.TypePendingDecision,
		GroupID:   project.GroupID,
		ProjectID: project.ID,
		Payload: map[string]interface{}{
			"title":    project.Title,
			"position": project.CurrentPreferenceIndex,
		},
		Audience: []events.Audience{events.ToUser(facultyID)},
	}
}
