package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/handler"
	"github.com/jwalitptl/tenant-billing/internal/middleware"
	"github.com/jwalitptl/tenant-billing/internal/model"
	adminService "github.com/jwalitptl/tenant-billing/internal/service/admin"
	"github.com/jwalitptl/tenant-billing/internal/service/audit"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
)

type Handler struct {
	service *adminService.Service
}

func NewHandler(service *adminService.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts platform administration; r must require
// PLATFORM_ADMIN.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orgs := r.Group("/organizations")
	{
		orgs.GET("", h.ListOrganizations)
		orgs.POST("", h.CreateOrganization)
		orgs.GET("/:id/members", h.ListMembers)
		orgs.POST("/:id/members/:membership_id/role", h.ChangeMemberRole)
		orgs.POST("/:id/status", h.UpdateOrganization)
	}
	r.POST("/billing/override/:id", h.OverrideBilling)
}

func (h *Handler) ListOrganizations(c *gin.Context) {
	orgs, err := h.service.ListOrganizations(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(orgs))
}

func (h *Handler) CreateOrganization(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req model.CreateOrganizationRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	org, err := h.service.CreateOrganization(c.Request.Context(), actor, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(org))
}

func (h *Handler) ListMembers(c *gin.Context) {
	orgID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	members, err := h.service.ListMembers(c.Request.Context(), orgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(members))
}

func (h *Handler) ChangeMemberRole(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	orgID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	membershipID, ok := uuidParam(c, "membership_id")
	if !ok {
		return
	}
	var req model.ChangeRoleRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	m, err := h.service.ChangeMemberRole(c.Request.Context(), actor, orgID, membershipID, req.Role)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(m))
}

func (h *Handler) UpdateOrganization(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	orgID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req model.UpdateOrganizationRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	org, err := h.service.UpdateOrganization(c.Request.Context(), actor, orgID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(org))
}

func (h *Handler) OverrideBilling(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	orgID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	org, err := h.service.OverrideBilling(c.Request.Context(), actor, orgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(org))
}

func actorFrom(c *gin.Context) (audit.Actor, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		handler.RespondError(c, apperrors.Unauthorized(nil))
		return audit.Actor{}, false
	}
	return audit.Actor{UserID: id.UserID, IPAddress: c.ClientIP()}, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, handler.NewErrorResponse("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
