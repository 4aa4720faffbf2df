package signature

import (
	"crypto/hmac"
	"strings"
)

// Verify checks whether sig is the hex HMAC-SHA256 of payload under secret.
// Hex case is ignored; the comparison is constant-time.
func Verify(payload []byte, secret, sig string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(sig))))
}
