package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/project-allocation-api/internal/dto"
	apierrors "github.com/yukikurage/project-allocation-api/internal/errors"
	"github.com/yukikurage/project-allocation-api/internal/services"
	"go.uber.org/zap"
)

// GroupHandler serves the group lifecycle endpoints.
type GroupHandler struct {
	groups *services.GroupService
	log    *zap.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(groups *services.GroupService, log *zap.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, log: log}
}

// CreateGroup creates a group led by the caller
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}

	type CreateGroupRequest struct {
		Name         string `json:"name" binding:"required"`
		Semester     int    `json:"semester" binding:"required"`
		AcademicYear string `json:"academic_year" binding:"required"`
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), p, services.CreateGroupInput{
		Name:         req.Name,
		Semester:     req.Semester,
		AcademicYear: req.AcademicYear,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToGroupDTO(*group))
}

// ListGroups returns the caller's active groups, optionally for one semester
func (h *GroupHandler) ListGroups(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	semester, ok := optionalSemester(c)
	if !ok {
		return
	}

	groups, err := h.groups.ListMyGroups(c.Request.Context(), p, semester)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"groups": dto.ToGroupDTOs(groups)})
}

// GetGroup returns group details
func (h *GroupHandler) GetGroup(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	group, err := h.groups.GetGroup(c.Request.Context(), p, groupID)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToGroupDTO(*group))
}

// FinalizeGroup freezes membership
func (h *GroupHandler) FinalizeGroup(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	group, err := h.groups.FinalizeGroup(c.Request.Context(), p, groupID)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToGroupDTO(*group))
}

// DisbandGroup dissolves a group that has not been locked
func (h *GroupHandler) DisbandGroup(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.groups.DisbandGroup(c.Request.Context(), p, groupID); err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Group disbanded"})
}

// LeaveGroup removes the caller from a group
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.groups.LeaveGroup(c.Request.Context(), p, groupID); err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left group"})
}

// RemoveMember lets the leader remove a member
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}
	studentID, ok := parseID(c, "student_id")
	if !ok {
		return
	}

	group, err := h.groups.RemoveMember(c.Request.Context(), p, groupID, studentID)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToGroupDTO(*group))
}
