package dto

import (
	"time"

	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/utils"
)

// PreferenceDTO is one ranked faculty entry
type PreferenceDTO struct {
	Position  int      `json:"position"`
	FacultyID uint64   `json:"faculty_id"`
	Faculty   *UserDTO `json:"faculty,omitempty"`
}

// DecisionDTO is one entry of the allocation log
type DecisionDTO struct {
	Position  int                    `json:"position"`
	FacultyID uint64                 `json:"faculty_id"`
	Decision  models.FacultyDecision `json:"decision"`
	DecidedAt time.Time              `json:"decided_at"`
}

// ProjectDTO represents a project and its allocation state
type ProjectDTO struct {
	ID                     uint64                  `json:"id"`
	GroupID                uint64                  `json:"group_id"`
	GroupName              string                  `json:"group_name,omitempty"`
	Title                  string                  `json:"title"`
	Domain                 string                  `json:"domain,omitempty"`
	AllocationStatus       models.AllocationStatus `json:"allocation_status"`
	CurrentPreferenceIndex int                     `json:"current_preference_index"`
	CurrentFacultyID       *uint64                 `json:"current_faculty_id,omitempty"`
	AllocatedFacultyID     *uint64                 `json:"allocated_faculty_id,omitempty"`
	AllocatedByAdminID     *uint64                 `json:"allocated_by_admin_id,omitempty"`
	AllocatedAt            *time.Time              `json:"allocated_at,omitempty"`
	CursorAdvancedAt       time.Time               `json:"cursor_advanced_at"`
	Preferences            []PreferenceDTO         `json:"preferences"`
	Decisions              []DecisionDTO           `json:"decisions"`
	CreatedAt              time.Time               `json:"created_at"`
}

// ProjectListResponse represents a paginated list of projects
type ProjectListResponse struct {
	Projects   []ProjectDTO             `json:"projects"`
	Pagination utils.PaginationResponse `json:"pagination"`
}

// ToProjectDTO converts a Project model to ProjectDTO
func ToProjectDTO(project models.Project) ProjectDTO {
	prefs := make([]PreferenceDTO, len(project.Preferences))
	for i, p := range project.Preferences {
		prefs[i] = PreferenceDTO{
			Position:  p.Position,
			FacultyID: p.FacultyID,
			Faculty:   ToUserRef(p.Faculty),
		}
	}
	decisions := make([]DecisionDTO, len(project.Decisions))
	for i, d := range project.Decisions {
		decisions[i] = DecisionDTO{
			Position:  d.Position,
			FacultyID: d.FacultyID,
			Decision:  d.Decision,
			DecidedAt: d.DecidedAt,
		}
	}

	out := ProjectDTO{
		ID:                     project.ID,
		GroupID:                project.GroupID,
		GroupName:              project.Group.Name,
		Title:                  project.Title,
		Domain:                 project.Domain,
		AllocationStatus:       project.AllocationStatus,
		CurrentPreferenceIndex: project.CurrentPreferenceIndex,
		AllocatedFacultyID:     project.AllocatedFacultyID,
		AllocatedByAdminID:     project.AllocatedByAdminID,
		AllocatedAt:            project.AllocatedAt,
		CursorAdvancedAt:       project.CursorAdvancedAt,
		Preferences:            prefs,
		Decisions:              decisions,
		CreatedAt:              project.CreatedAt,
	}
	if id, ok := project.CurrentFacultyID(); ok {
		out.CurrentFacultyID = &id
	}
	return out
}

// ToProjectDTOs converts a slice of projects
func ToProjectDTOs(projects []models.Project) []ProjectDTO {
	out := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		out[i] = ToProjectDTO(p)
	}
	return out
}
