package billing

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

// Service is the billing surface used by the handler.
type Service interface {
	Overview(ctx context.Context, orgID uuid.UUID) (*model.BillingOverview, error)
	LatestPayment(ctx context.Context, orgID uuid.UUID) (*model.PaymentAttemptView, error)
	Checkout(ctx context.Context, orgID uuid.UUID, payerEmail, plan string) (*model.PaymentAttemptView, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes expects r to require a member of the selected organization.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	billing := r.Group("/billing")
	{
		billing.GET("", h.Overview)
		billing.GET("/status", h.Status)
		billing.POST("/checkout", h.Checkout)
	}
}

func (h *Handler) Overview(c *gin.Context) {
	id, ok := selected(c)
	if !ok {
		return
	}
	overview, err := h.service.Overview(c.Request.Context(), *id.OrgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(overview))
}

func (h *Handler) Status(c *gin.Context) {
	id, ok := selected(c)
	if !ok {
		return
	}
	payment, err := h.service.LatestPayment(c.Request.Context(), *id.OrgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(payment))
}

// Checkout creates a PIX charge. The body is optional; the plan defaults
// to PRO.
func (h *Handler) Checkout(c *gin.Context) {
	id, ok := selected(c)
	if !ok {
		return
	}
	var req model.CheckoutRequest
	if c.Request.ContentLength != 0 {
		if !handler.BindJSON(c, &req) {
			return
		}
	}

	payment, err := h.service.Checkout(c.Request.Context(), *id.OrgID, id.Email, req.Plan)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(payment))
}

func selected(c *gin.Context) (*model.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		handler.RespondError(c, apperrors.Unauthorized(nil))
		return nil, false
	}
	if !id.HasOrg() {
		handler.RespondError(c, apperrors.Forbidden(nil))
		return nil, false
	}
	return id, true
}
