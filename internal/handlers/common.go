package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/project-allocation-api/internal/errors"
	"github.com/yukikurage/project-allocation-api/internal/middleware"
	"github.com/yukikurage/project-allocation-api/internal/services"
	"go.uber.org/zap"
)

// respondServiceError renders domain rejections with their kind's status.
// Anything else is logged and reported as a 500.
func respondServiceError(c *gin.Context, log *zap.Logger, err error) {
	if de, ok := apierrors.As(err); ok {
		apierrors.RespondWithDomainError(c, de)
		return
	}

	log.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	apierrors.InternalError(c, "")
}

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		apierrors.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func mustPrincipal(c *gin.Context) (services.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
		return services.Principal{}, false
	}
	return p, true
}

// optionalSemester reads the semester query parameter. A missing value
// returns nil.
func optionalSemester(c *gin.Context) (*int, bool) {
	raw := c.Query("semester")
	if raw == "" {
		return nil, true
	}
	semester, err := strconv.Atoi(raw)
	if err != nil {
		apierrors.BadRequest(c, "Invalid semester")
		return nil, false
	}
	return &semester, true
}
