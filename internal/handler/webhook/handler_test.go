package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/tenant-billing/internal/service/billing"
	apperrors "github.com/jwalitptl/tenant-billing/pkg/errors"
	"github.com/jwalitptl/tenant-billing/pkg/metrics"
	"github.com/jwalitptl/tenant-billing/pkg/webhook"
)

const secret = "whsec-test"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReconciler struct {
	result *billing.ReconcileResult
	err    error
	bodies [][]byte
}

func (f *fakeReconciler) Reconcile(_ context.Context, body []byte) (*billing.ReconcileResult, error) {
	f.bodies = append(f.bodies, body)
	return f.result, f.err
}

func setup(secret string, rec *fakeReconciler) (*gin.Engine, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	r := gin.New()
	NewHandler(webhook.NewVerifier(secret), rec, m).RegisterRoutes(r.Group(""))
	return r, m
}

func post(r http.Handler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", strings.NewReader(body))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMercadoPago_Signatures(t *testing.T) {
	body := `{"type":"payment","data":{"id":"123"}}`

	tests := []struct {
		name      string
		signature string
		status    int
		scheme    string
	}{
		{"raw hex", webhook.Sign(secret, []byte(body)), http.StatusOK, "raw_hex"},
		{"v1 field", "v1=" + webhook.Sign(secret, []byte(body)), http.StatusOK, "v1"},
		{"missing", "", http.StatusUnauthorized, "none"},
		{"wrong secret", webhook.Sign("other", []byte(body)), http.StatusUnauthorized, "none"},
		{"not hex", "zzzz", http.StatusUnauthorized, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeReconciler{result: &billing.ReconcileResult{Outcome: billing.WebhookReconciled}}
			r, m := setup(secret, rec)

			w := post(r, body, tt.signature)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Len(t, rec.bodies, 1)
				assert.Equal(t, body, string(rec.bodies[0]))
				assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookOutcomes.WithLabelValues(tt.scheme, billing.WebhookReconciled)))
			} else {
				assert.Empty(t, rec.bodies)
				assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookOutcomes.WithLabelValues(tt.scheme, outcomeRejected)))
			}
		})
	}
}

func TestMercadoPago_UnverifiedMode(t *testing.T) {
	rec := &fakeReconciler{result: &billing.ReconcileResult{Outcome: billing.WebhookIgnored}}
	r, m := setup("", rec)

	w := post(r, `{"action":"test"}`, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookOutcomes.WithLabelValues("unverified", billing.WebhookIgnored)))
}

func TestMercadoPago_GatewayFailureIsRetryable(t *testing.T) {
	rec := &fakeReconciler{
		result: &billing.ReconcileResult{Outcome: billing.WebhookGatewayError},
		err:    apperrors.GatewayUnavailable("payment provider unavailable", errors.New("dial tcp: timeout")),
	}
	r, m := setup(secret, rec)
	body := `{"data":{"id":"123"}}`

	w := post(r, body, webhook.Sign(secret, []byte(body)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "dial tcp")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookOutcomes.WithLabelValues("raw_hex", billing.WebhookGatewayError)))
}

func TestMercadoPago_BodyTooLarge(t *testing.T) {
	rec := &fakeReconciler{}
	r, _ := setup(secret, rec)

	w := post(r, strings.Repeat("x", MaxBodyBytes+1), "deadbeef")

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, rec.bodies)
}
