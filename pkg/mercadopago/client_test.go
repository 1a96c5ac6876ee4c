package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/tenant-billing/pkg/circuitbreaker"
)

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) ObserveGatewayCall(op, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, op+":"+outcome)
}

func TestClient_CreateCharge(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"id": 1234567890,
			"status": "pending",
			"point_of_interaction": {"transaction_data": {"qr_code_base64": "iVBORw0", "qr_code": "00020126"}}
		}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewClient(Config{
		AccessToken:     "token-123",
		NotificationURL: "https://example.com/api/v1/webhooks/mercadopago",
		BaseURL:         srv.URL + "/v1/payments",
		Observer:        obs,
	})

	charge, err := c.CreateCharge(context.Background(), ChargeRequest{
		Amount:            49.90,
		Description:       "Assinatura PRO - Acme",
		ExternalReference: "org:abc:plan:PRO:ts:1700000000",
		PayerEmail:        "owner@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, "1234567890", charge.ID)
	assert.Equal(t, "pending", charge.Status)
	assert.Equal(t, "iVBORw0", charge.QRCodeBase64)
	assert.Equal(t, "00020126", charge.QRCode)

	assert.Equal(t, 49.90, got["transaction_amount"])
	assert.Equal(t, "pix", got["payment_method_id"])
	assert.Equal(t, "org:abc:plan:PRO:ts:1700000000", got["external_reference"])
	assert.Equal(t, "https://example.com/api/v1/webhooks/mercadopago", got["notification_url"])
	assert.Equal(t, map[string]interface{}{"email": "owner@acme.test"}, got["payer"])
	assert.Equal(t, []string{"create_charge:ok"}, obs.outcomes)
}

func TestClient_CreateChargeOmitsEmptyNotificationURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, present := got["notification_url"]
		assert.False(t, present)
		_, _ = w.Write([]byte(`{"id":"1","status":"pending"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccessToken: "t", BaseURL: srv.URL})
	_, err := c.CreateCharge(context.Background(), ChargeRequest{Amount: 1})
	require.NoError(t, err)
}

func TestClient_GetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/payments/987", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":987,"status":"approved","external_reference":"org:x"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccessToken: "t", BaseURL: srv.URL + "/v1/payments/"})
	p, err := c.GetPayment(context.Background(), "987")
	require.NoError(t, err)
	assert.Equal(t, "987", p.ID)
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, "org:x", p.ExternalReference)
}

func TestClient_NotConfigured(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := c.CreateCharge(context.Background(), ChargeRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = c.GetPayment(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid payer"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccessToken: "t", BaseURL: srv.URL})
	_, err := c.CreateCharge(context.Background(), ChargeRequest{Amount: 1})

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Contains(t, pe.Body, "invalid payer")
	assert.False(t, pe.Temporary())
	assert.False(t, errors.Is(err, ErrRequestFailed))
}

func TestClient_TransportAndDecodeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewClient(Config{AccessToken: "t", BaseURL: srv.URL})
	_, err := c.GetPayment(context.Background(), "1")
	assert.ErrorIs(t, err, ErrRequestFailed)

	down := NewClient(Config{AccessToken: "t", BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err = down.GetPayment(context.Background(), "1")
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := NewClient(Config{
		AccessToken: "t",
		BaseURL:     srv.URL,
		Observer:    obs,
		Breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "test",
			MaxFailures: 2,
			Timeout:     time.Minute,
			IsFailure:   isBreakerFailure,
		}),
	})

	for i := 0; i < 2; i++ {
		_, err := c.GetPayment(context.Background(), "1")
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
	}

	_, err := c.GetPayment(context.Background(), "1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "get_payment:circuit_open", obs.outcomes[len(obs.outcomes)-1])
}

func TestClient_RejectionsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cb := NewBreaker(nil)
	c := NewClient(Config{AccessToken: "t", BaseURL: srv.URL, Breaker: cb})
	for i := 0; i < 10; i++ {
		_, _ = c.GetPayment(context.Background(), "1")
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}
