package database

import (
	"fmt"

	"gorm.io/gorm"
)

type partialIndex struct {
	table   string
	name    string
	columns string
	where   string
}

// invariantIndexes enforce at the storage layer what the services already check:
// one pending invitation per (group, invitee), one active group per student and
// semester, and one active leader per group.
var invariantIndexes = []partialIndex{
	{"invitations", "idx_invitations_pending_pair", "group_id, invitee_id", "status = 'pending'"},
	{"group_members", "idx_group_members_one_active_group", "student_id, semester", "is_active"},
	{"group_members", "idx_group_members_one_leader", "group_id", "is_active AND role = 'leader'"},
}

// AddIndexes creates the partial unique indexes. MySQL has no partial
// indexes, so there the service-level checks are the only guard.
func AddIndexes(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "postgres", "sqlite":
	default:
		return nil
	}

	for _, idx := range invariantIndexes {
		sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s",
			idx.name, idx.table, idx.columns, idx.where)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
