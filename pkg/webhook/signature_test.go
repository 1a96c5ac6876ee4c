package webhook

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

var testBody = []byte(`{"action":"payment.updated","data":{"id":"123456"}}`)

func TestVerifier_AcceptsEachScheme(t *testing.T) {
	v := NewVerifier(testSecret)

	tests := []struct {
		name   string
		header string
		want   Scheme
	}{
		{"bare hex", Sign(testSecret, testBody), SchemeRawHex},
		{"bare hex upper case", upper(Sign(testSecret, testBody)), SchemeRawHex},
		{"v1 only", "v1=" + Sign(testSecret, testBody), SchemeV1},
		{"v1 with unrelated ts", "ts=1700000000,v1=" + Sign(testSecret, testBody), SchemeV1},
		{"timestamp bound", SignTimestamped(testSecret, "1700000000", testBody), SchemeTimestamped},
		{"timestamp bound with spaces", " ts = 1700000000 , v1 = " + Sign(testSecret, []byte("1700000000."+string(testBody))), SchemeTimestamped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scheme, err := v.Verify(testBody, tt.header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, scheme)
		})
	}
}

func TestVerifier_RejectsSingleByteMutation(t *testing.T) {
	v := NewVerifier(testSecret)
	headers := map[string]string{
		"bare hex":        Sign(testSecret, testBody),
		"v1":              "v1=" + Sign(testSecret, testBody),
		"timestamp bound": SignTimestamped(testSecret, "1700000000", testBody),
	}

	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			for i := range testBody {
				mutated := append([]byte(nil), testBody...)
				mutated[i] ^= 0x01
				assert.Equal(t, SchemeNone, v.Match(mutated, header), "byte %d", i)
			}
		})
	}
}

func TestVerifier_RejectsOtherShapes(t *testing.T) {
	v := NewVerifier(testSecret)
	valid := Sign(testSecret, testBody)

	tests := map[string]string{
		"empty":               "",
		"not hex":             "zz" + valid[2:],
		"truncated digest":    valid[:40],
		"wrong secret":        Sign("other", testBody),
		"kv without v1":       "ts=1700000000,v2=" + valid,
		"kv with empty v1":    "ts=1700000000,v1=",
		"ts bound to other":   SignTimestamped(testSecret, "1700000001", testBody)[len("ts=1700000001"):],
		"sha256= prefix form": "sha256=" + valid,
	}

	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(testBody, header)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestVerifier_TimestampMustMatchSignedValue(t *testing.T) {
	v := NewVerifier(testSecret)
	header := "ts=1700000001,v1=" + Sign(testSecret, []byte("1700000000."+string(testBody)))
	assert.Equal(t, SchemeNone, v.Match(testBody, header))
}

func TestVerifier_NoSecretAcceptsAnything(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Enabled())

	for _, header := range []string{"", "garbage", "v1=00", Sign("x", testBody)} {
		scheme, err := v.Verify([]byte("anything"), header)
		require.NoError(t, err)
		assert.Equal(t, SchemeUnverified, scheme)
	}
}

func TestVerifier_Tolerance(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(testSecret, WithTolerance(5*time.Minute), WithClock(func() time.Time { return now }))

	fresh := strconv.FormatInt(now.Add(-time.Minute).Unix(), 10)
	assert.Equal(t, SchemeTimestamped, v.Match(testBody, SignTimestamped(testSecret, fresh, testBody)))

	freshMillis := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)
	assert.Equal(t, SchemeTimestamped, v.Match(testBody, SignTimestamped(testSecret, freshMillis, testBody)))

	stale := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)
	assert.Equal(t, SchemeNone, v.Match(testBody, SignTimestamped(testSecret, stale, testBody)))

	// the tolerance only governs the timestamp-bound path
	assert.Equal(t, SchemeV1, v.Match(testBody, "ts="+stale+",v1="+Sign(testSecret, testBody)))
}

func TestScheme_String(t *testing.T) {
	assert.Equal(t, "none", SchemeNone.String())
	assert.Equal(t, "unverified", SchemeUnverified.String())
	assert.Equal(t, "raw_hex", SchemeRawHex.String())
	assert.Equal(t, "v1", SchemeV1.String())
	assert.Equal(t, "v1_ts", SchemeTimestamped.String())
}

func upper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}
