// Package signature verifies that webhook bodies and checkout callbacks were
// produced by the payment gateway. Both use hex-encoded HMAC-SHA256 with a
// shared secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of payload under secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Configured reports whether webhook verification is enabled for secret
func Configured(secret string) bool {
	return secret != ""
}

// Verify reports whether signatureHeader carries the HMAC of body under secret.
// With an empty secret verification is skipped and Verify returns true; callers
// are expected to warn about that.
func Verify(body []byte, signatureHeader, secret string) bool {
	if !Configured(secret) {
		return true
	}
	if signatureHeader == "" {
		return false
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

// PaymentPayload is the message the gateway signs for a checkout callback
func PaymentPayload(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(gatewayOrderID + "|" + gatewayPaymentID)
}

// VerifyPayment checks a checkout callback signature. Unlike Verify, an empty
// secret never passes.
func VerifyPayment(gatewayOrderID, gatewayPaymentID, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(PaymentPayload(gatewayOrderID, gatewayPaymentID), secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
