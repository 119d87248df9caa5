package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader returns the canonical signature header for a provider,
// e.g. "X-Payflow-Signature" for "payflow".
func SignatureHeader(provider string) string {
	p := strings.TrimSpace(provider)
	if p == "" {
		return "X-Signature"
	}
	return "X-" + strings.ToUpper(p[:1]) + strings.ToLower(p[1:]) + "-Signature"
}

// Sign computes the hex HMAC-SHA256 of the raw body with the provider secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the header value against the body's expected
// signature in constant time.
func VerifySignature(secret string, body []byte, header string) bool {
	if header == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(header))
}
