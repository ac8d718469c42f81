package dto

import "github.com/yukikurage/project-allocation-api/internal/models"

// UserDTO represents a user in API responses
type UserDTO struct {
	ID          uint64          `json:"id"`
	Username    string          `json:"username"`
	DisplayName string          `json:"display_name"`
	Role        models.UserRole `json:"role"`
}

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	}
}

// ToUserRef converts a loaded relation, returning nil when it was not preloaded
func ToUserRef(user models.User) *UserDTO {
	if user.ID == 0 {
		return nil
	}
	u := ToUserDTO(user)
	return &u
}
