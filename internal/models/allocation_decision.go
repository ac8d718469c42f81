package models

import "time"

type FacultyDecision string

const (
	FacultyDecisionChosen FacultyDecision = "chosen"
	FacultyDecisionPassed FacultyDecision = "passed"
)

type AllocationDecision struct {
	ID        uint64          `gorm:"primarykey" json:"id"`
	ProjectID uint64          `gorm:"not null;index" json:"project_id"`
	FacultyID uint64          `gorm:"not null" json:"faculty_id"`
	Position  int             `gorm:"not null" json:"position"`
	Decision  FacultyDecision `gorm:"type:varchar(20);not null" json:"decision"`
	DecidedAt time.Time       `gorm:"not null" json:"decided_at"`
}
