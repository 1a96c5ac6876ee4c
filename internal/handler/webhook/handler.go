package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/handler"
	"github.com/jwalitptl/tenant-billing/internal/service/billing"
	"github.com/jwalitptl/tenant-billing/pkg/metrics"
	"github.com/jwalitptl/tenant-billing/pkg/webhook"
)

// MaxBodyBytes caps the notification body read before verification.
const MaxBodyBytes = 64 << 10

const outcomeRejected = "rejected"

type Reconciler interface {
	Reconcile(ctx context.Context, body []byte) (*billing.ReconcileResult, error)
}

type Handler struct {
	verifier   *webhook.Verifier
	reconciler Reconciler
	metrics    *metrics.Metrics
}

func NewHandler(verifier *webhook.Verifier, reconciler Reconciler, m *metrics.Metrics) *Handler {
	return &Handler{verifier: verifier, reconciler: reconciler, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	hooks := r.Group("/webhooks")
	{
		hooks.POST("/mercadopago", h.MercadoPago)
	}
}

// MercadoPago verifies the signature over the raw body before anything is
// parsed, then reconciles. Irrelevant notifications are acknowledged so
// the provider stops retrying; gateway failures answer 502 so it retries.
func (h *Handler) MercadoPago(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, handler.NewErrorResponse("payload too large"))
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, handler.NewErrorResponse("could not read body"))
		return
	}

	scheme, err := h.verifier.Verify(body, c.GetHeader(webhook.SignatureHeader))
	if err != nil {
		h.metrics.ObserveWebhook(scheme.String(), outcomeRejected)
		log.Warn().
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id")).
			Msg("webhook signature rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid signature"))
		return
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), body)
	outcome := billing.WebhookError
	if result != nil {
		outcome = result.Outcome
	}
	h.metrics.ObserveWebhook(scheme.String(), outcome)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
