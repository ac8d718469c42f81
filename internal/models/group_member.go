package models

import "time"

type MemberRole string

const (
	MemberRoleLeader MemberRole = "leader"
	MemberRoleMember MemberRole = "member"
)

type GroupMember struct {
	ID        uint64     `gorm:"primarykey" json:"id"`
	GroupID   uint64     `gorm:"not null;index:idx_group_members_group_active,priority:1" json:"group_id"`
	StudentID uint64     `gorm:"not null;index:idx_group_members_student_semester,priority:1" json:"student_id"`
	Semester  int        `gorm:"not null;index:idx_group_members_student_semester,priority:2" json:"semester"`
	Role      MemberRole `gorm:"type:varchar(20);not null" json:"role"`
	IsActive  bool       `gorm:"not null;default:true;index:idx_group_members_group_active,priority:2" json:"is_active"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at"`

	// Relations
	Student User `gorm:"foreignKey:StudentID" json:"student,omitempty"`
}
