// Package mercadopago is a minimal client for MercadoPago PIX payments.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/tenant-billing/pkg/circuitbreaker"
)

const (
	DefaultBaseURL = "https://api.mercadopago.com/v1/payments"

	OpCreateCharge = "create_charge"
	OpGetPayment   = "get_payment"

	maxErrorBody = 2048
)

var (
	// ErrNotConfigured is returned when no access token is set.
	ErrNotConfigured = errors.New("mercadopago: access token not configured")
	// ErrRequestFailed matches every transport level failure.
	ErrRequestFailed = errors.New("mercadopago: request failed")
)

// RequestError is a transport failure or an unreadable response.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("mercadopago: %s request failed: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrRequestFailed }

// ProviderError is a non-2xx response.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("mercadopago: %s returned HTTP %d", e.Op, e.StatusCode)
}

// Temporary reports whether retrying later might succeed.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Gateway is the subset of the provider API used by billing.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
}

type ChargeRequest struct {
	// Amount in reais.
	Amount            float64
	Description       string
	ExternalReference string
	PayerEmail        string
}

// Charge is a freshly created PIX payment.
type Charge struct {
	ID           string
	Status       string
	QRCodeBase64 string
	QRCode       string
}

// Payment is the provider's current view of a payment.
type Payment struct {
	ID                string
	Status            string
	ExternalReference string
}

// Observer receives one call per provider request.
type Observer interface {
	ObserveGatewayCall(operation, outcome string, d time.Duration)
}

type Config struct {
	AccessToken     string
	NotificationURL string
	BaseURL         string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Breaker         *circuitbreaker.CircuitBreaker
	Observer        Observer
}

type Client struct {
	baseURL         string
	token           string
	notificationURL string
	http            *http.Client
	cb              *circuitbreaker.CircuitBreaker
	observer        Observer
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cb := cfg.Breaker
	if cb == nil {
		cb = NewBreaker(nil)
	}
	return &Client{
		baseURL:         base,
		token:           cfg.AccessToken,
		notificationURL: cfg.NotificationURL,
		http:            httpClient,
		cb:              cb,
		observer:        cfg.Observer,
	}
}

// NewBreaker returns a breaker that only counts transport failures and
// provider 5xx/429 responses.
func NewBreaker(onStateChange func(name string, from, to circuitbreaker.State)) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:          "mercadopago",
		MaxFailures:   5,
		Timeout:       30 * time.Second,
		IsFailure:     isBreakerFailure,
		OnStateChange: onStateChange,
	})
}

func isBreakerFailure(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary()
	}
	return errors.Is(err, ErrRequestFailed)
}

type chargePayload struct {
	TransactionAmount float64      `json:"transaction_amount"`
	Description       string       `json:"description"`
	PaymentMethodID   string       `json:"payment_method_id"`
	ExternalReference string       `json:"external_reference"`
	Payer             payerPayload `json:"payer"`
	NotificationURL   string       `json:"notification_url,omitempty"`
}

type payerPayload struct {
	Email string `json:"email"`
}

type paymentResponse struct {
	ID                 flexID `json:"id"`
	Status             string `json:"status"`
	ExternalReference  string `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCodeBase64 string `json:"qr_code_base64"`
			QRCode       string `json:"qr_code"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// flexID accepts both numeric and string ids.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// CreateCharge creates a PIX payment. Amount is sent in reais.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if c.token == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(chargePayload{
		TransactionAmount: req.Amount,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.ExternalReference,
		Payer:             payerPayload{Email: req.PayerEmail},
		NotificationURL:   c.notificationURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge: %w", err)
	}

	var resp paymentResponse
	if err := c.do(ctx, OpCreateCharge, http.MethodPost, c.baseURL, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &RequestError{Op: OpCreateCharge, Err: errors.New("response has no payment id")}
	}

	td := resp.PointOfInteraction.TransactionData
	return &Charge{
		ID:           string(resp.ID),
		Status:       resp.Status,
		QRCodeBase64: td.QRCodeBase64,
		QRCode:       td.QRCode,
	}, nil
}

// GetPayment reads the authoritative status of a payment.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if c.token == "" {
		return nil, ErrNotConfigured
	}

	var resp paymentResponse
	endpoint := c.baseURL + "/" + url.PathEscape(id)
	if err := c.do(ctx, OpGetPayment, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &Payment{
		ID:                string(resp.ID),
		Status:            resp.Status,
		ExternalReference: resp.ExternalReference,
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out interface{}) error {
	start := time.Now()
	err := c.cb.Execute(func() error {
		return c.roundTrip(ctx, op, method, endpoint, body, out)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		err = &RequestError{Op: op, Err: err}
	}
	c.observe(op, err, time.Since(start))
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, endpoint string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) observe(op string, err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	var pe *ProviderError
	switch {
	case err == nil:
	case errors.Is(err, circuitbreaker.ErrOpen):
		outcome = "circuit_open"
	case errors.As(err, &pe):
		outcome = "provider_error"
	default:
		outcome = "request_error"
	}
	c.observer.ObserveGatewayCall(op, outcome, d)
}
