// Package webhook authenticates payment provider notifications.
//
// A notification is accepted under the first matching scheme:
//
//  1. no secret configured: every request is accepted (unverified mode)
//  2. the header is a bare hex digest of HMAC-SHA256(secret, body)
//  3. the header is a "k=v,k=v" list whose v1 is HMAC-SHA256(secret, body),
//     or HMAC-SHA256(secret, "{ts}.{body}") when ts is present
//
// All digest comparisons are constant time.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the provider signature.
const SignatureHeader = "X-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Scheme identifies how a notification was authenticated.
type Scheme int

const (
	SchemeNone Scheme = iota
	SchemeUnverified
	SchemeRawHex
	SchemeV1
	SchemeTimestamped
)

func (s Scheme) String() string {
	switch s {
	case SchemeUnverified:
		return "unverified"
	case SchemeRawHex:
		return "raw_hex"
	case SchemeV1:
		return "v1"
	case SchemeTimestamped:
		return "v1_ts"
	default:
		return "none"
	}
}

// Accepted reports whether the scheme authenticates the request.
func (s Scheme) Accepted() bool {
	return s != SchemeNone
}

type Option func(*Verifier)

// WithTolerance rejects timestamp-bound signatures whose ts is further than
// d from now. Zero disables the check.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) { v.tolerance = d }
}

// WithClock overrides the time source used for the tolerance check.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Enabled reports whether signatures are checked at all.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify returns ErrInvalidSignature unless Match accepts the request.
func (v *Verifier) Verify(body []byte, header string) (Scheme, error) {
	scheme := v.Match(body, header)
	if !scheme.Accepted() {
		return scheme, ErrInvalidSignature
	}
	return scheme, nil
}

// Match returns the scheme under which body and header authenticate, or
// SchemeNone.
func (v *Verifier) Match(body []byte, header string) Scheme {
	if !v.Enabled() {
		return SchemeUnverified
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return SchemeNone
	}

	if !strings.Contains(header, "=") {
		if v.equal(header, v.mac(body)) {
			return SchemeRawHex
		}
		return SchemeNone
	}

	fields := parseFields(header)
	sig, ok := fields["v1"]
	if !ok || sig == "" {
		return SchemeNone
	}
	if v.equal(sig, v.mac(body)) {
		return SchemeV1
	}

	ts, ok := fields["ts"]
	if !ok || ts == "" || !v.fresh(ts) {
		return SchemeNone
	}
	if v.equal(sig, v.mac(timestamped(ts, body))) {
		return SchemeTimestamped
	}
	return SchemeNone
}

func (v *Verifier) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	_, _ = h.Write(payload)
	return h.Sum(nil)
}

// equal decodes the provided hex digest and compares it in constant time.
func (v *Verifier) equal(provided string, expected []byte) bool {
	got, err := hex.DecodeString(strings.ToLower(provided))
	if err != nil || len(got) != len(expected) {
		return false
	}
	return hmac.Equal(got, expected)
}

// fresh applies the tolerance window. ts is unix seconds or milliseconds.
func (v *Verifier) fresh(ts string) bool {
	if v.tolerance <= 0 {
		return true
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	var at time.Time
	if n > 1e12 {
		at = time.UnixMilli(n)
	} else {
		at = time.Unix(n, 0)
	}
	d := v.now().Sub(at)
	if d < 0 {
		d = -d
	}
	return d <= v.tolerance
}

func parseFields(header string) map[string]string {
	fields := map[string]string{}
	for _, chunk := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(chunk, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return fields
}

func timestamped(ts string, body []byte) []byte {
	out := make([]byte, 0, len(ts)+1+len(body))
	out = append(out, ts...)
	out = append(out, '.')
	return append(out, body...)
}

// Sign returns the bare hex signature of body.
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// SignTimestamped returns a "ts=..,v1=.." header bound to ts.
func SignTimestamped(secret, ts string, body []byte) string {
	return "ts=" + ts + ",v1=" + Sign(secret, timestamped(ts, body))
}
