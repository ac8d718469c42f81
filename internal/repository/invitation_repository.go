package repository

import (
	"time"

	"github.com/yukikurage/project-allocation-api/internal/models"
	"gorm.io/gorm"
)

// GormInvitationRepository is a GORM implementation of InvitationRepository
type GormInvitationRepository struct {
	db *gorm.DB
}

// NewInvitationRepository creates a new InvitationRepository
func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &GormInvitationRepository{db: db}
}

// Create creates a new invitation
func (r *GormInvitationRepository) Create(invitation *models.Invitation) error {
	return r.db.Omit("Group", "Invitee").Create(invitation).Error
}

// FindByID finds an invitation with its group
func (r *GormInvitationRepository) FindByID(id uint64) (*models.Invitation, error) {
	var invitation models.Invitation
	if err := r.db.Preload("Group").First(&invitation, id).Error; err != nil {
		return nil, err
	}
	return &invitation, nil
}

// FindPending finds the pending invitation for a (group, invitee) pair
func (r *GormInvitationRepository) FindPending(groupID, inviteeID uint64) (*models.Invitation, error) {
	var invitation models.Invitation
	if err := r.db.
		Where("group_id = ? AND invitee_id = ? AND status = ?", groupID, inviteeID, models.InvitationStatusPending).
		First(&invitation).Error; err != nil {
		return nil, err
	}
	return &invitation, nil
}

// ListPendingByGroup lists pending invitations of a group, oldest first
func (r *GormInvitationRepository) ListPendingByGroup(groupID uint64) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := r.db.
		Where("group_id = ? AND status = ?", groupID, models.InvitationStatusPending).
		Order("created_at ASC, id ASC").
		Find(&invitations).Error
	return invitations, err
}

// ListPendingByInvitee lists an invitee's pending invitations for a semester
func (r *GormInvitationRepository) ListPendingByInvitee(inviteeID uint64, semester int) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := r.db.
		Where("invitee_id = ? AND semester = ? AND status = ?", inviteeID, semester, models.InvitationStatusPending).
		Order("created_at ASC, id ASC").
		Find(&invitations).Error
	return invitations, err
}

// ListByGroup lists every invitation of a group, newest first
func (r *GormInvitationRepository) ListByGroup(groupID uint64) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := r.db.
		Preload("Invitee").
		Where("group_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Find(&invitations).Error
	return invitations, err
}

// ListByInvitee lists an invitee's invitations, newest first
func (r *GormInvitationRepository) ListByInvitee(inviteeID uint64, semester *int) ([]models.Invitation, error) {
	query := r.db.
		Preload("Group").
		Preload("Group.Members", "is_active = ?", true).
		Where("invitee_id = ?", inviteeID)
	if semester != nil {
		query = query.Where("semester = ?", *semester)
	}

	var invitations []models.Invitation
	err := query.Order("created_at DESC, id DESC").Find(&invitations).Error
	return invitations, err
}

// Resolve moves a pending invitation to status. The WHERE on status makes
// concurrent resolutions of the same row settle on exactly one winner.
func (r *GormInvitationRepository) Resolve(id uint64, status models.InvitationStatus, reason *string, at time.Time) (bool, error) {
	result := r.db.Model(&models.Invitation{}).
		Where("id = ? AND status = ?", id, models.InvitationStatusPending).
		Updates(map[string]interface{}{
			"status":            status,
			"resolution_reason": reason,
			"resolved_at":       at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
