package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/project-allocation-api/internal/dto"
	apierrors "github.com/yukikurage/project-allocation-api/internal/errors"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/services"
	"github.com/yukikurage/project-allocation-api/internal/utils"
	"go.uber.org/zap"
)

const defaultStalledAfter = 72 * time.Hour

// AllocationHandler serves faculty decisions and the admin allocation views.
type AllocationHandler struct {
	allocation *services.AllocationService
	log        *zap.Logger
}

// NewAllocationHandler creates a new AllocationHandler.
func NewAllocationHandler(allocation *services.AllocationService, log *zap.Logger) *AllocationHandler {
	return &AllocationHandler{allocation: allocation, log: log}
}

// ListPending returns the projects waiting on the calling faculty
func (h *AllocationHandler) ListPending(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	projects, err := h.allocation.PendingForFaculty(c.Request.Context(), p)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": dto.ToProjectDTOs(projects)})
}

// Choose accepts the project for the calling faculty
func (h *AllocationHandler) Choose(c *gin.Context) {
	h.decide(c, h.allocation.Choose)
}

// Pass hands the project to the next preference
func (h *AllocationHandler) Pass(c *gin.Context) {
	h.decide(c, h.allocation.Pass)
}

type decisionFunc func(ctx context.Context, p services.Principal, projectID uint64) (*models.Project, error)

func (h *AllocationHandler) decide(c *gin.Context, fn decisionFunc) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	project, err := fn(c.Request.Context(), p, projectID)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}

// ListAllocations lists projects in one allocation status
func (h *AllocationHandler) ListAllocations(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	status := models.AllocationStatus(c.DefaultQuery("status", string(models.AllocationStatusExhausted)))
	params := utils.GetPaginationParams(c)

	projects, total, err := h.allocation.ListByStatus(c.Request.Context(), p, status, params)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ProjectListResponse{
		Projects: dto.ToProjectDTOs(projects),
		Pagination: utils.PaginationResponse{
			Page:  params.Page,
			Limit: params.Limit,
			Total: total,
		},
	})
}

// ListStalled lists pending projects whose cursor has not moved for older_than
func (h *AllocationHandler) ListStalled(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	olderThan := defaultStalledAfter
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			apierrors.BadRequest(c, "older_than must be a duration such as 48h")
			return
		}
		olderThan = d
	}

	projects, err := h.allocation.Stalled(c.Request.Context(), p, olderThan)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": dto.ToProjectDTOs(projects)})
}

// ForceAllocate assigns a faculty member regardless of the cascade
func (h *AllocationHandler) ForceAllocate(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	type ForceAllocateRequest struct {
		FacultyID uint64 `json:"faculty_id" binding:"required"`
	}

	var req ForceAllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.allocation.ForceAllocate(c.Request.Context(), p, projectID, req.FacultyID)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProjectDTO(*project))
}
