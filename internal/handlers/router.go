package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/project-allocation-api/internal/middleware"
	"github.com/yukikurage/project-allocation-api/internal/models"
	"github.com/yukikurage/project-allocation-api/internal/repository"
)

// Handlers bundles every HTTP handler of the API.
type Handlers struct {
	Auth        *AuthHandler
	Groups      *GroupHandler
	Invitations *InvitationHandler
	Projects    *ProjectHandler
	Allocation  *AllocationHandler
	Realtime    *RealtimeHandler
	Metrics     http.Handler
}

// RegisterRoutes mounts the API on r. Session middleware must already be installed.
func RegisterRoutes(r *gin.Engine, h Handlers, users repository.UserRepository) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Project Allocation API is running",
		})
	})
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	api := r.Group("/api")

	// Auth routes (public)
	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.Auth.Signup)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/logout", h.Auth.Logout)
		auth.GET("/me", middleware.RequireAuth(), h.Auth.GetCurrentUser)
	}

	authed := api.Group("")
	authed.Use(middleware.RequireAuth(), middleware.LoadPrincipal(users))

	students := middleware.RequireRole(models.UserRoleStudent)
	faculty := middleware.RequireRole(models.UserRoleFaculty)
	admins := middleware.RequireRole(models.UserRoleAdmin)

	groups := authed.Group("/groups")
	{
		groups.POST("", students, h.Groups.CreateGroup)
		groups.GET("", students, h.Groups.ListGroups)
		groups.GET("/:id", h.Groups.GetGroup)
		groups.POST("/:id/finalize", students, h.Groups.FinalizeGroup)
		groups.POST("/:id/disband", students, h.Groups.DisbandGroup)
		groups.POST("/:id/leave", students, h.Groups.LeaveGroup)
		groups.DELETE("/:id/members/:student_id", students, h.Groups.RemoveMember)
		groups.POST("/:id/invitations", students, h.Invitations.CreateInvitation)
		groups.GET("/:id/invitations", h.Invitations.ListGroupInvitations)
		groups.POST("/:id/project", students, h.Projects.RegisterProject)
	}

	invitations := authed.Group("/invitations", students)
	{
		invitations.GET("", h.Invitations.ListMyInvitations)
		invitations.POST("/:id/respond", h.Invitations.RespondToInvitation)
	}

	authed.GET("/projects/:id", h.Projects.GetProject)
	authed.POST("/projects/:id/choose", faculty, h.Allocation.Choose)
	authed.POST("/projects/:id/pass", faculty, h.Allocation.Pass)
	authed.GET("/faculty/pending", faculty, h.Allocation.ListPending)

	admin := authed.Group("/admin", admins)
	{
		admin.GET("/allocations", h.Allocation.ListAllocations)
		admin.GET("/allocations/stalled", h.Allocation.ListStalled)
		admin.POST("/projects/:id/force-allocate", h.Allocation.ForceAllocate)
	}

	if h.Realtime != nil {
		authed.GET("/ws", h.Realtime.Stream)
	}
}
