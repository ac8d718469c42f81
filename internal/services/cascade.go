package services

import (
	"time"

	"github.com/yukikurage/project-allocation-api/internal/models"
)

type cascadeOutcome int

const (
	outcomeAllocated cascadeOutcome = iota
	outcomeAdvanced
	outcomeExhausted
)

// applyDecision applies one faculty decision to the cursor. Only the faculty at the
// cursor of a pending project may decide; the project is mutated in place and
// the decision to append to the log is returned.
func applyDecision(project *models.Project, facultyID uint64, decision models.FacultyDecision, at time.Time) (models.AllocationDecision, cascadeOutcome, error) {
	if project.AllocationStatus != models.AllocationStatusPending {
		return models.AllocationDecision{}, 0, ErrAlreadyResolved
	}
	current, ok := project.CurrentFacultyID()
	if !ok || current != facultyID {
		return models.AllocationDecision{}, 0, ErrNotCurrentPreference
	}

	record := models.AllocationDecision{
		ProjectID: project.ID,
		FacultyID: facultyID,
		Position:  project.CurrentPreferenceIndex,
		Decision:  decision,
		DecidedAt: at,
	}

	if decision == models.FacultyDecisionChosen {
		project.AllocationStatus = models.AllocationStatusAllocated
		project.AllocatedFacultyID = &facultyID
		project.AllocatedAt = &at
		return record, outcomeAllocated, nil
	}

	// The cursor moves past the last entry on exhaustion, so the decision log
	// length keeps matching it.
	project.CurrentPreferenceIndex++
	project.CursorAdvancedAt = at
	if project.CurrentPreferenceIndex >= len(project.Preferences) {
		project.AllocationStatus = models.AllocationStatusExhausted
		return record, outcomeExhausted, nil
	}
	return record, outcomeAdvanced, nil
}

// applyOverride records an admin allocation that bypasses the cursor.
func applyOverride(project *models.Project, facultyID, adminID uint64, allowPreempt bool, at time.Time) error {
	switch project.AllocationStatus {
	case models.AllocationStatusExhausted:
	case models.AllocationStatusPending:
		if !allowPreempt {
			return ErrCascadeInProgress
		}
	default:
		return ErrAlreadyResolved
	}

	project.AllocationStatus = models.AllocationStatusManuallyAllocated
	project.AllocatedFacultyID = &facultyID
	project.AllocatedByAdminID = &adminID
	project.AllocatedAt = &at
	return nil
}
