package signature

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// SecretPrefix marks generated webhook signing secrets.
const SecretPrefix = "whsec_"

// MinSecretLength is the shortest caller-supplied secret accepted.
const MinSecretLength = 24

// GenerateSecret creates a cryptographically random signing secret.
// Format: "whsec_" + 32 bytes hex = 70 characters total.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("ubtrippin: failed to generate random secret: " + err.Error())
	}
	return SecretPrefix + hex.EncodeToString(b)
}

// ValidSecret reports whether a caller-supplied secret is long enough and
// free of surrounding whitespace.
func ValidSecret(s string) bool {
	return len(s) >= MinSecretLength && strings.TrimSpace(s) == s
}
