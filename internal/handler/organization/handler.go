package organization

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/handler"
	"github.com/jwalitptl/tenant-billing/internal/middleware"
	"github.com/jwalitptl/tenant-billing/internal/model"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
)

type OrgServicer interface {
	List(ctx context.Context, userID uuid.UUID) ([]*model.OrgMembership, error)
	Select(ctx context.Context, id *model.Identity, orgID uuid.UUID) (*model.TokenResponse, error)
	CreateInvite(ctx context.Context, id *model.Identity, req *model.CreateInviteRequest) (*model.InviteResponse, error)
	AcceptInvite(ctx context.Context, id *model.Identity, token string) (*model.TokenResponse, error)
	Dashboard(ctx context.Context, id *model.Identity) (*model.Dashboard, error)
	Members(ctx context.Context, id *model.Identity) ([]*model.MemberView, error)
}

type Handler struct {
	service OrgServicer
}

func NewHandler(service OrgServicer) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts organization selection and invites; r must
// require authentication.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	org := r.Group("/org")
	{
		org.GET("", h.ListOrganizations)
		org.POST("/select", h.SelectOrganization)
		org.POST("/invites", h.CreateInvite)
		org.GET("/invites/accept", h.AcceptInviteLink)
		org.POST("/invites/accept", h.AcceptInvite)
	}
}

// RegisterMemberRoutes mounts the member area; r must require a member of
// the selected organization and sit behind the access gate.
func (h *Handler) RegisterMemberRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", h.Dashboard)
	r.GET("/members", h.Members)
}

func (h *Handler) ListOrganizations(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	orgs, err := h.service.List(c.Request.Context(), id.UserID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(orgs))
}

func (h *Handler) SelectOrganization(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req model.SelectOrgRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	tokens, err := h.service.Select(c.Request.Context(), id, req.OrgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(tokens))
}

func (h *Handler) CreateInvite(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req model.CreateInviteRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	invite, err := h.service.CreateInvite(c.Request.Context(), id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(invite))
}

func (h *Handler) AcceptInvite(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req model.AcceptInviteRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	h.acceptInvite(c, id, req.Token)
}

// AcceptInviteLink serves the link mailed with an invite.
func (h *Handler) AcceptInviteLink(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	token := c.Query("token")
	if token == "" {
		handler.RespondError(c, apperrors.Validation("token is required", nil))
		return
	}
	h.acceptInvite(c, id, token)
}

func (h *Handler) acceptInvite(c *gin.Context, id *model.Identity, token string) {
	tokens, err := h.service.AcceptInvite(c.Request.Context(), id, token)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(tokens))
}

func (h *Handler) Dashboard(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	dash, err := h.service.Dashboard(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(dash))
}

func (h *Handler) Members(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	members, err := h.service.Members(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(members))
}

func identity(c *gin.Context) (*model.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		handler.RespondError(c, apperrors.Unauthorized(nil))
		return nil, false
	}
	return id, true
}
