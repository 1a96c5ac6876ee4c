package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/internal/handler"
	"github.com/jwalitptl/tenant-billing/internal/model"
)

// AuditLister reads the admin audit trail.
type AuditLister interface {
	AuditLogs(ctx context.Context, orgID *uuid.UUID, limit int) ([]*model.AdminAuditLog, error)
}

type Handler struct {
	service AuditLister
}

func NewHandler(service AuditLister) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes expects r to require PLATFORM_ADMIN.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit-logs", h.ListLogs)
}

// ListLogs returns the newest entries first, optionally for one org.
func (h *Handler) ListLogs(c *gin.Context) {
	var orgID *uuid.UUID
	if raw := c.Query("org_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid org_id"))
			return
		}
		orgID = &id
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid limit"))
			return
		}
		limit = n
	}

	logs, err := h.service.AuditLogs(c.Request.Context(), orgID, limit)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}
