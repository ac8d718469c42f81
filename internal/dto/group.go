package dto

import (
	"time"

	"github.com/yukikurage/project-allocation-api/internal/models"
)

// GroupMemberDTO represents an active member of a group
type GroupMemberDTO struct {
	StudentID uint64            `json:"student_id"`
	Student   *UserDTO          `json:"student,omitempty"`
	Role      models.MemberRole `json:"role"`
	JoinedAt  time.Time         `json:"joined_at"`
}

// GroupDTO represents a group in API responses
type GroupDTO struct {
	ID           uint64             `json:"id"`
	Name         string             `json:"name"`
	Semester     int                `json:"semester"`
	AcademicYear string             `json:"academic_year"`
	Status       models.GroupStatus `json:"status"`
	LeaderID     uint64             `json:"leader_id"`
	MinMembers   int                `json:"min_members"`
	MaxMembers   int                `json:"max_members"`
	MemberCount  int                `json:"member_count"`
	Members      []GroupMemberDTO   `json:"members,omitempty"`
	FinalizedAt  *time.Time         `json:"finalized_at,omitempty"`
	LockedAt     *time.Time         `json:"locked_at,omitempty"`
	DisbandedAt  *time.Time         `json:"disbanded_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// ToGroupDTO converts a Group model to GroupDTO. Only active members are listed.
func ToGroupDTO(group models.Group) GroupDTO {
	active := group.ActiveMembers()
	members := make([]GroupMemberDTO, len(active))
	for i, m := range active {
		members[i] = GroupMemberDTO{
			StudentID: m.StudentID,
			Student:   ToUserRef(m.Student),
			Role:      m.Role,
			JoinedAt:  m.JoinedAt,
		}
	}

	return GroupDTO{
		ID:           group.ID,
		Name:         group.Name,
		Semester:     group.Semester,
		AcademicYear: group.AcademicYear,
		Status:       group.Status,
		LeaderID:     group.LeaderID,
		MinMembers:   group.MinMembers,
		MaxMembers:   group.MaxMembers,
		MemberCount:  len(active),
		Members:      members,
		FinalizedAt:  group.FinalizedAt,
		LockedAt:     group.LockedAt,
		DisbandedAt:  group.DisbandedAt,
		CreatedAt:    group.CreatedAt,
	}
}

// ToGroupDTOs converts a slice of groups
func ToGroupDTOs(groups []models.Group) []GroupDTO {
	out := make([]GroupDTO, len(groups))
	for i, g := range groups {
		out[i] = ToGroupDTO(g)
	}
	return out
}
