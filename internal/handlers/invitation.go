package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/project-allocation-api/internal/dto"
	apierrors "github.com/yukikurage/project-allocation-api/internal/errors"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/services"
	"go.uber.org/zap"
)

// InvitationHandler serves the invitation ledger endpoints.
type InvitationHandler struct {
	invitations *services.InvitationService
	log         *zap.Logger
}

// NewInvitationHandler creates a new InvitationHandler.
func NewInvitationHandler(invitations *services.InvitationService, log *zap.Logger) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, log: log}
}

// CreateInvitation invites a student into the group
func (h *InvitationHandler) CreateInvitation(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	type CreateInvitationRequest struct {
		InviteeID uint64            `json:"invitee_id" binding:"required"`
		Role      models.MemberRole `json:"role"`
	}

	var req CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	invitation, err := h.invitations.CreateInvitation(c.Request.Context(), p, services.CreateInvitationInput{
		GroupID:   groupID,
		InviteeID: req.InviteeID,
		Role:      req.Role,
	})
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToInvitationDTO(*invitation))
}

// ListGroupInvitations lists every invitation sent by a group
func (h *InvitationHandler) ListGroupInvitations(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	groupID, ok := parseID(c, "id")
	if !ok {
		return
	}

	invitations, err := h.invitations.ListForGroup(c.Request.Context(), p, groupID)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitations": dto.ToInvitationDTOs(invitations)})
}

// ListMyInvitations lists the caller's invitations
func (h *InvitationHandler) ListMyInvitations(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	semester, ok := optionalSemester(c)
	if !ok {
		return
	}

	invitations, err := h.invitations.ListForInvitee(c.Request.Context(), p, semester)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitations": dto.ToInvitationDTOs(invitations)})
}

// RespondToInvitation accepts or rejects an invitation
func (h *InvitationHandler) RespondToInvitation(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	invitationID, ok := parseID(c, "id")
	if !ok {
		return
	}

	type RespondRequest struct {
		Decision models.InvitationDecision `json:"decision" binding:"required,oneof=accept reject"`
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "decision must be accept or reject")
		return
	}

	invitation, err := h.invitations.Respond(c.Request.Context(), p, invitationID, req.Decision)
	if err != nil {
		respondServiceError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToInvitationDTO(*invitation))
}
