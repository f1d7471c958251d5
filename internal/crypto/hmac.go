// Package crypto provides HMAC request signing for venue API calls and
// deterministic idempotency keys for order submission.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HMACAuth holds the credentials for HMAC-authenticated venue requests.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret, base64-encoded
	Passphrase string // API passphrase
}

// RequestHeaders returns the HTTP headers for an authenticated venue request.
// The signature is HMAC-SHA256(secret, timestamp+method+path+body) encoded as
// base64. The secret is base64-decoded before use as the key.
func (h *HMACAuth) RequestHeaders(method, path, body string) map[string]string {
	return h.RequestHeadersAt(method, path, body, time.Now().Unix())
}

// RequestHeadersAt is like RequestHeaders but lets the caller supply the Unix
// timestamp (useful for deterministic testing).
func (h *HMACAuth) RequestHeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	secretBytes, err := base64.StdEncoding.DecodeString(h.Secret)
	if err != nil {
		// If decoding fails, fall back to raw bytes so the caller gets an
		// obviously-wrong signature rather than a panic.
		secretBytes = []byte(h.Secret)
	}

	message := ts + method + path + body
	sig := hmacSHA256Base64(secretBytes, message)

	return map[string]string{
		"X-API-KEY":        h.Key,
		"X-API-TIMESTAMP":  ts,
		"X-API-PASSPHRASE": h.Passphrase,
		"X-API-SIGNATURE":  sig,
	}
}

// IdempotencyKey derives a stable key for an order attempt from the link,
// side, token, and the decision cycle it originated in. Every retry of the
// same logical order reproduces the same key, so the venue can deduplicate
// resubmissions after ambiguous failures.
func IdempotencyKey(secret, linkKey, side, tokenID string, cycle time.Time) string {
	message := strings.Join([]string{
		linkKey,
		side,
		tokenID,
		strconv.FormatInt(cycle.UTC().Unix(), 10),
	}, "|")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
