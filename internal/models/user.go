package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleFaculty UserRole = "faculty"
	UserRoleAdmin   UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStudent, UserRoleFaculty, UserRoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           uint64         `gorm:"primarykey" json:"id"`
	Username     string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	DisplayName  string         `gorm:"type:varchar(255)" json:"display_name"`
	Role         UserRole       `gorm:"type:varchar(20);not null;default:'student';index" json:"role"`
	PasswordHash string         `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
