package repository

import (
	"time"

	"github.com/yukikurage/project-allocation-api/internal/database"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/utils"
	"gorm.io/gorm"
)

// GormProjectRepository is a GORM implementation of ProjectRepository
type GormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &GormProjectRepository{db: db}
}

func (r *GormProjectRepository) withDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Preferences", database.OrderedPreferences).
		Preload("Preferences.Faculty").
		Preload("Decisions", database.OrderedDecisions)
}

// Create creates a project and its preference rows
func (r *GormProjectRepository) Create(project *models.Project) error {
	return r.db.Omit("Group", "Decisions").Create(project).Error
}

// FindByID finds a project with preferences and decisions in order
func (r *GormProjectRepository) FindByID(id uint64) (*models.Project, error) {
	var project models.Project
	if err := r.withDetails(r.db).First(&project, id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// FindByGroupID finds the project registered for a group
func (r *GormProjectRepository) FindByGroupID(groupID uint64) (*models.Project, error) {
	var project models.Project
	if err := r.withDetails(r.db).Where("group_id = ?", groupID).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdateAllocation writes cursor and allocation fields if the stored version matches
func (r *GormProjectRepository) UpdateAllocation(project *models.Project) error {
	result := r.db.Model(&models.Project{}).
		Where("id = ? AND version = ?", project.ID, project.Version).
		Updates(map[string]interface{}{
			"current_preference_index": project.CurrentPreferenceIndex,
			"allocation_status":        project.AllocationStatus,
			"allocated_faculty_id":     project.AllocatedFacultyID,
			"allocated_by_admin_id":    project.AllocatedByAdminID,
			"cursor_advanced_at":       project.CursorAdvancedAt,
			"allocated_at":             project.AllocatedAt,
			"version":                  project.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	project.Version++
	return nil
}

// AppendDecision appends to a project's decision log
func (r *GormProjectRepository) AppendDecision(decision *models.AllocationDecision) error {
	return r.db.Create(decision).Error
}

// ListPendingForFaculty lists pending projects whose cursor points at the faculty,
// longest-waiting first
func (r *GormProjectRepository) ListPendingForFaculty(facultyID uint64) ([]models.Project, error) {
	var projects []models.Project
	err := r.withDetails(r.db).
		Preload("Group").
		Joins("JOIN faculty_preferences ON faculty_preferences.project_id = projects.id AND faculty_preferences.position = projects.current_preference_index").
		Where("projects.allocation_status = ? AND faculty_preferences.faculty_id = ?", models.AllocationStatusPending, facultyID).
		Order("projects.cursor_advanced_at ASC, projects.id ASC").
		Find(&projects).Error
	return projects, err
}

// ListByStatus lists one page of projects with the given allocation status
// and the total number of matches
func (r *GormProjectRepository) ListByStatus(status models.AllocationStatus, params utils.PaginationParams) ([]models.Project, int64, error) {
	var total int64
	if err := r.db.Model(&models.Project{}).Where("allocation_status = ?", status).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var projects []models.Project
	err := r.withDetails(r.db).
		Preload("Group").
		Where("allocation_status = ?", status).
		Order("id ASC").
		Scopes(database.Paginate(params)).
		Find(&projects).Error
	return projects, total, err
}

// ListStalled lists pending projects whose cursor last moved before the given time
func (r *GormProjectRepository) ListStalled(before time.Time) ([]models.Project, error) {
	var projects []models.Project
	err := r.withDetails(r.db).
		Preload("Group").
		Where("allocation_status = ? AND cursor_advanced_at < ?", models.AllocationStatusPending, before).
		Order("cursor_advanced_at ASC, id ASC").
		Find(&projects).Error
	return projects, err
}
