package repository

import (
	"time"

	"github.com/yukikurage/project-allocation-api/internal/models"
	"gorm.io/gorm"
)

// GormGroupRepository is a GORM implementation of GroupRepository
type GormGroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new GroupRepository
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &GormGroupRepository{db: db}
}

// Create creates a group together with its initial members
func (r *GormGroupRepository) Create(group *models.Group) error {
	return r.db.Create(group).Error
}

// FindByID finds a group with all of its member rows
func (r *GormGroupRepository) FindByID(id uint64) (*models.Group, error) {
	var group models.Group
	if err := r.db.
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("group_members.joined_at ASC, group_members.id ASC")
		}).
		Preload("Members.Student").
		First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// UpdateState writes lifecycle fields if the stored version matches
func (r *GormGroupRepository) UpdateState(group *models.Group) error {
	result := r.db.Model(&models.Group{}).
		Where("id = ? AND version = ?", group.ID, group.Version).
		Updates(map[string]interface{}{
			"name":         group.Name,
			"status":       group.Status,
			"finalized_at": group.FinalizedAt,
			"locked_at":    group.LockedAt,
			"disbanded_at": group.DisbandedAt,
			"version":      group.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}

	group.Version++
	return nil
}

// ListByStudent lists groups in which the student is an active member
func (r *GormGroupRepository) ListByStudent(studentID uint64, semester *int) ([]models.Group, error) {
	memberSubQuery := r.db.Model(&models.GroupMember{}).
		Select("group_members.group_id").
		Where("group_members.student_id = ? AND group_members.is_active = ?", studentID, true)

	query := r.db.Model(&models.Group{}).Where("id IN (?)", memberSubQuery)
	if semester != nil {
		query = query.Where("semester = ?", *semester)
	}

	var groups []models.Group
	if err := query.
		Preload("Members", "is_active = ?", true).
		Preload("Members.Student").
		Order("created_at DESC").
		Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// AddMember adds a member row
func (r *GormGroupRepository) AddMember(member *models.GroupMember) error {
	return r.db.Create(member).Error
}

// DeactivateMember marks a student's active membership inactive
func (r *GormGroupRepository) DeactivateMember(groupID, studentID uint64, at time.Time) error {
	result := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND student_id = ? AND is_active = ?", groupID, studentID, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"left_at":   at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeactivateAllMembers marks every active membership of a group inactive
func (r *GormGroupRepository) DeactivateAllMembers(groupID uint64, at time.Time) (int64, error) {
	result := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"left_at":   at,
		})
	return result.RowsAffected, result.Error
}

// CountActiveMembers counts active members of a group
func (r *GormGroupRepository) CountActiveMembers(groupID uint64) (int64, error) {
	var count int64
	err := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Count(&count).Error
	return count, err
}

// FindActiveMembership finds the student's active membership for a semester
func (r *GormGroupRepository) FindActiveMembership(studentID uint64, semester int) (*models.GroupMember, error) {
	var member models.GroupMember
	if err := r.db.
		Where("student_id = ? AND semester = ? AND is_active = ?", studentID, semester, true).
		First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// ListActiveMemberIDs lists the student IDs of a group's active members
func (r *GormGroupRepository) ListActiveMemberIDs(groupID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Order("joined_at ASC").
		Pluck("student_id", &ids).Error
	return ids, err
}
