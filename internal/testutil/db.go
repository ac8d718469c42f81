// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yukikurage/project-allocation-api/internal/database"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory sqlite database. The pool is capped at one
// connection so every query sees the same in-memory schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a user with the given role and the password "password123".
func CreateUser(t *testing.T, db *gorm.DB, username string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Username:     username,
		DisplayName:  username,
		Role:         role,
		PasswordHash: string(hash),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateUsers inserts count users named prefix1..prefixN.
func CreateUsers(t *testing.T, db *gorm.DB, prefix string, count int, role models.UserRole) []*models.User {
	t.Helper()

	users := make([]*models.User, count)
	for i := range users {
		users[i] = CreateUser(t, db, fmt.Sprintf("%s%d", prefix, i+1), role)
	}
	return users
}
