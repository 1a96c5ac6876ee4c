package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/tenant-billing/internal/handler"
	"github.com/jwalitptl/tenant-billing/internal/model"
	"github.com/jwalitptl/tenant-billing/pkg/metrics"
)

// Gate decisions, also used as metric labels.
const (
	GateExempt    = "exempt"
	GateAnonymous = "anonymous"
	GateAllowed   = "allowed"
	GateBlocked   = "blocked"
	GateError     = "error"
)

// AccessEvaluator applies lazy expiry and returns the organization.
type AccessEvaluator interface {
	EvaluateAccess(ctx context.Context, orgID uuid.UUID) (*model.Organization, error)
}

type GateConfig struct {
	// ExemptPrefixes are path prefixes the gate never checks. A prefix
	// matches itself and anything below it.
	ExemptPrefixes []string
	// BillingPath is where blocked organizations are sent.
	BillingPath string
}

// DefaultGateConfig exempts the billing, auth, org selection, webhook and
// operational surfaces under base.
func DefaultGateConfig(base string) GateConfig {
	base = strings.TrimRight(base, "/")
	return GateConfig{
		ExemptPrefixes: []string{
			base + "/auth",
			base + "/billing",
			base + "/org",
			base + "/webhooks",
			base + "/health",
			base + "/metrics",
		},
		BillingPath: base + "/billing",
	}
}

func (g GateConfig) exempt(path string) bool {
	for _, p := range g.ExemptPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// AccessGate evaluates billing expiry for the selected organization and
// stops blocked organizations before any non-exempt handler runs. It must
// run after Identify.
func AccessGate(evaluator AccessEvaluator, cfg GateConfig, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.exempt(c.Request.URL.Path) {
			m.ObserveGate(GateExempt)
			c.Next()
			return
		}

		id, ok := IdentityFrom(c)
		if !ok || !id.HasOrg() {
			// role and membership checks downstream reject these
			m.ObserveGate(GateAnonymous)
			c.Next()
			return
		}

		org, err := evaluator.EvaluateAccess(c.Request.Context(), *id.OrgID)
		if err != nil {
			m.ObserveGate(GateError)
			handler.RespondError(c, err)
			return
		}

		if org.IsBlocked() {
			m.ObserveGate(GateBlocked)
			log.Info().
				Str("org_id", org.ID.String()).
				Str("path", c.Request.URL.Path).
				Msg("access blocked by billing status")
			c.Header("Location", cfg.BillingPath)
			c.AbortWithStatusJSON(http.StatusSeeOther, handler.NewErrorResponse("billing is blocked for this organization, settle payment at "+cfg.BillingPath))
			return
		}

		m.ObserveGate(GateAllowed)
		c.Next()
	}
}
