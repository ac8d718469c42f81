package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/project-allocation-api/internal/dto"
	apierrors "github.com/yukikurage/project-allocation-api/internal/errors"
	"github.com/yukikurage/project-allocation-api/internal/services"
	"go.uber.org/zap"
)

// ProjectHandler serves project registration and lookup.
type ProjectHandler struct {
	projects *services.ProjectService
	log      *zap.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects *services.ProjectService, log *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, log: log}
}

// RegisterProject registers the group's project with its ranked faculty
func (h *ProjectHandler) RegisterProject(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	type RegisterProjectRequest struct {
		Title            string   `json:"title" binding:"required"`
		Domain           string   `json:"domain"`
		RankedFacultyIDs []uint64 `json:"ranked_faculty_ids" binding:"required"`
	}

	var req RegisterProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projects.RegisterProject(c.Request.Context(), p, services.RegisterProjectInput{
		GroupID:          groupID,
		Title:            req.Title,
		Domain:           req.Domain,
		RankedFacultyIDs: req.RankedFacultyIDs,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToProjectDTO(*project))
}

// GetProject returns a project and its allocation log
func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	project, err := h.projects.GetProject(c.Request.Context(), p, projectID)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}
