// Package signature provides HMAC-SHA256 webhook signing and verification.
//
// The signature covers the exact request body and nothing else. It is sent
// lowercase hex-encoded in the x-ubt-signature header.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Header names carried by every outbound delivery.
const (
	HeaderSignature = "x-ubt-signature"
	HeaderEvent     = "x-ubt-event"
	HeaderDelivery  = "x-ubt-delivery"
	HeaderTimestamp = "x-ubt-timestamp"
)

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
// It is a pure function of its inputs.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
