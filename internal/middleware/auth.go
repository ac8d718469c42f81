package middleware

import (
	"errors"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/project-allocation-api/internal/constants"
	apierrors "github.com/yukikurage/project-allocation-api/internal/errors"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/repository"
	"github.com/yukikurage/project-allocation-api/internal/services"
	"gorm.io/gorm"
)

// RequireAuth checks if the user is authenticated via session
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(constants.ContextKeyUserID)

		if userID == nil {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		// Store user ID in context for easy access in handlers
		c.Set(constants.ContextKeyUserID, userID)
		c.Next()
	}
}

// LoadPrincipal resolves the session user into a services.Principal.
// It must run after RequireAuth.
func LoadPrincipal(users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		user, err := users.FindByID(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// The account behind the session is gone.
				apierrors.Unauthorized(c, "Session is no longer valid")
			} else {
				apierrors.InternalError(c, "Failed to load user")
			}
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyPrincipal, services.PrincipalFor(user))
		c.Next()
	}
}

// RequireRole rejects principals holding none of roles
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		apierrors.RespondWithError(c, services.ErrNotAuthorized.Kind.HTTPStatus(), &apierrors.APIError{
			Code:    apierrors.ErrCodeInsufficientPermissions,
			Kind:    apierrors.KindNotAuthorized,
			Message: "This action requires the " + string(roles[0]) + " role",
		})
		c.Abort()
	}
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}

	switch v := userID.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

// GetPrincipal retrieves the principal set by LoadPrincipal
func GetPrincipal(c *gin.Context) (services.Principal, bool) {
	v, exists := c.Get(constants.ContextKeyPrincipal)
	if !exists {
		return services.Principal{}, false
	}
	p, ok := v.(services.Principal)
	return p, ok
}
