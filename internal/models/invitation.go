package models

import "time"

type InvitationStatus string

const (
	InvitationStatusPending      InvitationStatus = "pending"
	InvitationStatusAccepted     InvitationStatus = "accepted"
	InvitationStatusRejected     InvitationStatus = "rejected"
	InvitationStatusAutoRejected InvitationStatus = "auto_rejected"
)

type InvitationDecision string

const (
	InvitationDecisionAccept InvitationDecision = "accept"
	InvitationDecisionReject InvitationDecision = "reject"
)

type Invitation struct {
	ID               uint64           `gorm:"primarykey" json:"id"`
	GroupID          uint64           `gorm:"not null;index:idx_invitations_group_status,priority:1" json:"group_id"`
	InviteeID        uint64           `gorm:"not null;index:idx_invitations_invitee_status,priority:1" json:"invitee_id"`
	InvitedBy        uint64           `gorm:"not null" json:"invited_by"`
	Semester         int              `gorm:"not null" json:"semester"`
	Status           InvitationStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_invitations_group_status,priority:2;index:idx_invitations_invitee_status,priority:2" json:"status"`
	ProposedRole     MemberRole       `gorm:"type:varchar(20);not null" json:"proposed_role"`
	ResolutionReason *string          `gorm:"type:varchar(255)" json:"resolution_reason"`
	CreatedAt        time.Time        `json:"created_at"`
	ResolvedAt       *time.Time       `json:"resolved_at"`

	// Relations
	Group   Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	Invitee User  `gorm:"foreignKey:InviteeID" json:"invitee,omitempty"`
}

// IsPending reports whether the invitation can still be answered.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}
