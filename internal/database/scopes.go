package database

import (
	"gorm.io/gorm"

	"github.com/yukikurage/project-allocation-api/internal/utils"
)

// Paginate applies pagination to a GORM query
func Paginate(params utils.PaginationParams) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(params.Offset).Limit(params.Limit)
	}
}

// OrderedPreferences preloads preferences in position order.
func OrderedPreferences(db *gorm.DB) *gorm.DB {
	return db.Order("faculty_preferences.position ASC")
}

// OrderedDecisions preloads the decision log in the order it was written.
func OrderedDecisions(db *gorm.DB) *gorm.DB {
	return db.Order("allocation_decisions.id ASC")
}
