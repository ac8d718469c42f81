package services

import "github.com/yukikurage/project-allocation-api/internal/models"

// Principal is the authenticated caller of a command.
type Principal struct {
	UserID uint64
	Role   models.UserRole
}

// PrincipalFor builds the principal of an authenticated user.
func PrincipalFor(user *models.User) Principal {
	return Principal{UserID: user.ID, Role: user.Role}
}

func (p Principal) IsStudent() bool { return p.Role == models.UserRoleStudent }
func (p Principal) IsFaculty() bool { return p.Role == models.UserRoleFaculty }
func (p Principal) IsAdmin() bool   { return p.Role == models.UserRoleAdmin }

// require returns ErrNotAuthorized unless the principal holds one of roles.
func (p Principal) require(roles ...models.UserRole) error {
	if p.UserID == 0 {
		return ErrNotAuthorized
	}
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return ErrNotAuthorized
}
