package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestHeadersDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "key-1", Secret: "c2VjcmV0LWJ5dGVz", Passphrase: "pass"}

	a := auth.RequestHeadersAt("POST", "/orders", `{"size":10}`, 1700000000)
	b := auth.RequestHeadersAt("POST", "/orders", `{"size":10}`, 1700000000)
	assert.Equal(t, a, b)
	assert.Equal(t, "key-1", a["X-API-KEY"])
	assert.Equal(t, "1700000000", a["X-API-TIMESTAMP"])
	assert.NotEmpty(t, a["X-API-SIGNATURE"])

	// Any change to the message changes the signature.
	c := auth.RequestHeadersAt("POST", "/orders", `{"size":11}`, 1700000000)
	assert.NotEqual(t, a["X-API-SIGNATURE"], c["X-API-SIGNATURE"])
}

func TestIdempotencyKeyStableAcrossRetries(t *testing.T) {
	cycle := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	k1 := IdempotencyKey("s", "m1:mk1", "buy", "tok-a", cycle)
	k2 := IdempotencyKey("s", "m1:mk1", "buy", "tok-a", cycle)
	require.Equal(t, k1, k2)
	assert.Len(t, k1, 32)

	assert.NotEqual(t, k1, IdempotencyKey("s", "m1:mk1", "buy", "tok-a", cycle.Add(time.Second)))
	assert.NotEqual(t, k1, IdempotencyKey("s", "m1:mk1", "sell", "tok-a", cycle))
	assert.NotEqual(t, k1, IdempotencyKey("s", "m1:mk2", "buy", "tok-a", cycle))
}

func TestStringRedactsSecrets(t *testing.T) {
	auth := &HMACAuth{Key: "key-123456", Secret: "super-secret"}
	s := auth.String()
	assert.NotContains(t, s, "super-secret")
	assert.Contains(t, s, "key-****")
}
