package models

import "time"

type GroupStatus string

const (
	GroupStatusForming   GroupStatus = "forming"
	GroupStatusOpen      GroupStatus = "open"
	GroupStatusFinalized GroupStatus = "finalized"
	GroupStatusLocked    GroupStatus = "locked"
	GroupStatusDisbanded GroupStatus = "disbanded"
)

// groupTransitions lists the forward-only lifecycle edges.
var groupTransitions = map[GroupStatus][]GroupStatus{
	GroupStatusForming:   {GroupStatusOpen, GroupStatusFinalized, GroupStatusDisbanded},
	GroupStatusOpen:      {GroupStatusFinalized, GroupStatusDisbanded},
	GroupStatusFinalized: {GroupStatusLocked, GroupStatusDisbanded},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s GroupStatus) CanTransitionTo(next GroupStatus) bool {
	for _, allowed := range groupTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsMembers reports whether membership may still change.
func (s GroupStatus) AcceptsMembers() bool {
	return s == GroupStatusForming || s == GroupStatusOpen
}

type Group struct {
	ID           uint64      `gorm:"primarykey" json:"id"`
	Name         string      `gorm:"type:varchar(100);not null" json:"name"`
	Semester     int         `gorm:"not null;index" json:"semester"`
	AcademicYear string      `gorm:"type:varchar(20);not null" json:"academic_year"`
	Status       GroupStatus `gorm:"type:varchar(20);not null;default:'forming';index" json:"status"`
	MinMembers   int         `gorm:"not null" json:"min_members"`
	MaxMembers   int         `gorm:"not null" json:"max_members"`
	LeaderID     uint64      `gorm:"not null;index" json:"leader_id"`
	FinalizedAt  *time.Time  `json:"finalized_at"`
	LockedAt     *time.Time  `json:"locked_at"`
	DisbandedAt  *time.Time  `json:"disbanded_at"`
	Version      int64       `gorm:"not null;default:1" json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	// Relations
	Leader  User          `gorm:"foreignKey:LeaderID" json:"-"`
	Members []GroupMember `gorm:"foreignKey:GroupID" json:"members,omitempty"`
}

// ActiveMembers returns the members currently in the group.
func (g *Group) ActiveMembers() []GroupMember {
	active := make([]GroupMember, 0, len(g.Members))
	for _, m := range g.Members {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active
}

// HasActiveMember reports whether studentID is an active member.
func (g *Group) HasActiveMember(studentID uint64) bool {
	for _, m := range g.Members {
		if m.IsActive && m.StudentID == studentID {
			return true
		}
	}
	return false
}
