package dto

import (
	"time"

	"github.com/yukikurage/project-allocation-api/internal/models"
)

// InvitationGroupDTO is the group summary shown to an invitee
type InvitationGroupDTO struct {
	ID          uint64             `json:"id"`
	Name        string             `json:"name"`
	Status      models.GroupStatus `json:"status"`
	LeaderID    uint64             `json:"leader_id"`
	MemberCount int                `json:"member_count"`
	MaxMembers  int                `json:"max_members"`
}

// InvitationDTO represents an invitation in API responses
type InvitationDTO struct {
	ID               uint64                  `json:"id"`
	GroupID          uint64                  `json:"group_id"`
	InviteeID        uint64                  `json:"invitee_id"`
	InvitedBy        uint64                  `json:"invited_by"`
	Semester         int                     `json:"semester"`
	Status           models.InvitationStatus `json:"status"`
	ProposedRole     models.MemberRole       `json:"proposed_role"`
	ResolutionReason *string                 `json:"resolution_reason,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	ResolvedAt       *time.Time              `json:"resolved_at,omitempty"`
	Group            *InvitationGroupDTO     `json:"group,omitempty"`
	Invitee          *UserDTO                `json:"invitee,omitempty"`
}

// ToInvitationDTO converts an Invitation model to InvitationDTO
func ToInvitationDTO(invitation models.Invitation) InvitationDTO {
	out := InvitationDTO{
		ID:               invitation.ID,
		GroupID:          invitation.GroupID,
		InviteeID:        invitation.InviteeID,
		InvitedBy:        invitation.InvitedBy,
		Semester:         invitation.Semester,
		Status:           invitation.Status,
		ProposedRole:     invitation.ProposedRole,
		ResolutionReason: invitation.ResolutionReason,
		CreatedAt:        invitation.CreatedAt,
		ResolvedAt:       invitation.ResolvedAt,
		Invitee:          ToUserRef(invitation.Invitee),
	}
	if g := invitation.Group; g.ID != 0 {
		out.Group = &InvitationGroupDTO{
			ID:          g.ID,
			Name:        g.Name,
			Status:      g.Status,
			LeaderID:    g.LeaderID,
			MemberCount: len(g.ActiveMembers()),
			MaxMembers:  g.MaxMembers,
		}
	}
	return out
}

// ToInvitationDTOs converts a slice of invitations
func ToInvitationDTOs(invitations []models.Invitation) []InvitationDTO {
	out := make([]InvitationDTO, len(invitations))
	for i, inv := range invitations {
		out[i] = ToInvitationDTO(inv)
	}
	return out
}
