package models

import "time"

type AllocationStatus string

const (
	AllocationStatusPending           AllocationStatus = "pending"
	AllocationStatusAllocated         AllocationStatus = "allocated"
	AllocationStatusExhausted         AllocationStatus = "exhausted"
	AllocationStatusManuallyAllocated AllocationStatus = "manually_allocated"
)

// IsTerminal reports whether an allocation has been recorded.
func (s AllocationStatus) IsTerminal() bool {
	return s == AllocationStatusAllocated || s == AllocationStatusManuallyAllocated
}

type Project struct {
	ID                     uint64           `gorm:"primarykey" json:"id"`
	GroupID                uint64           `gorm:"not null;uniqueIndex" json:"group_id"`
	Title                  string           `gorm:"type:varchar(255);not null" json:"title"`
	Domain                 string           `gorm:"type:varchar(255)" json:"domain"`
	CurrentPreferenceIndex int              `gorm:"not null;default:0" json:"current_preference_index"`
	AllocatedFacultyID     *uint64          `gorm:"index" json:"allocated_faculty_id"`
	AllocationStatus       AllocationStatus `gorm:"type:varchar(30);not null;default:'pending';index" json:"allocation_status"`
	AllocatedByAdminID     *uint64          `json:"allocated_by_admin_id"`
	CursorAdvancedAt       time.Time        `gorm:"not null" json:"cursor_advanced_at"`
	AllocatedAt            *time.Time       `json:"allocated_at"`
	Version                int64            `gorm:"not null;default:1" json:"version"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`

	// Relations
	Group       Group                `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	Preferences []FacultyPreference  `gorm:"foreignKey:ProjectID" json:"preferences,omitempty"`
	Decisions   []AllocationDecision `gorm:"foreignKey:ProjectID" json:"decisions,omitempty"`
}

// RankedFacultyIDs returns the preference list ordered by position.
// Preferences must be loaded ordered by position.
func (p *Project) RankedFacultyIDs() []uint64 {
	ids := make([]uint64, len(p.Preferences))
	for i, pref := range p.Preferences {
		ids[i] = pref.FacultyID
	}
	return ids
}

// CurrentFacultyID returns the faculty holding the decision, if any.
func (p *Project) CurrentFacultyID() (uint64, bool) {
	if p.AllocationStatus != AllocationStatusPending {
		return 0, false
	}
	if p.CurrentPreferenceIndex < 0 || p.CurrentPreferenceIndex >= len(p.Preferences) {
		return 0, false
	}
	return p.Preferences[p.CurrentPreferenceIndex].FacultyID, true
}
