// Package vault encrypts webhook signing secrets at rest.
//
// Secrets are sealed with AES-256-GCM under a key derived from the
// configured master key with HKDF-SHA256. Stored ciphertexts look like
// "v1.<base64url(nonce || sealed)>". Previous master keys can be supplied so
// secrets written before a key rotation still decrypt.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	formatV1   = "v1."
	derivation = "ubtrippin webhook secret v1"

	// MinKeyLength is the minimum master key length in bytes.
	MinKeyLength = 16
)

// Vault errors.
var (
	ErrInvalidKey          = errors.New("vault: master key must be at least 16 bytes")
	ErrEmptyPlaintext      = errors.New("vault: plaintext is required")
	ErrMalformedCiphertext = errors.New("vault: malformed ciphertext")
	ErrDecrypt             = errors.New("vault: unable to decrypt secret")
)

// Vault seals and opens webhook secrets. It is safe for concurrent use.
type Vault struct {
	current  cipher.AEAD
	previous []cipher.AEAD
}

// Option configures a Vault.
type Option func(*Vault) error

// WithPreviousKeys registers retired master keys accepted by Decrypt.
func WithPreviousKeys(keys ...[]byte) Option {
	return func(v *Vault) error {
		for _, k := range keys {
			aead, err := newAEAD(k)
			if err != nil {
				return err
			}
			v.previous = append(v.previous, aead)
		}
		return nil
	}
}

// New creates a Vault from a master key.
func New(masterKey []byte, opts ...Option) (*Vault, error) {
	aead, err := newAEAD(masterKey)
	if err != nil {
		return nil, err
	}
	v := &Vault{current: aead}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// NewFromString is New for keys held in configuration.
func NewFromString(masterKey string, opts ...Option) (*Vault, error) {
	return New([]byte(strings.TrimSpace(masterKey)), opts...)
}

// Encrypt seals plaintext. Each call uses a fresh random nonce, so equal
// plaintexts produce different ciphertexts.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, v.current.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: nonce generation failed: %w", err)
	}

	sealed := v.current.Seal(nonce, nonce, []byte(plaintext), nil)
	return formatV1 + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Errors never include the
// ciphertext or any key material.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, formatV1) {
		return "", ErrMalformedCiphertext
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(ciphertext, formatV1))
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	for _, aead := range v.keys() {
		ns := aead.NonceSize()
		if len(raw) < ns+aead.Overhead() {
			return "", ErrMalformedCiphertext
		}
		plain, openErr := aead.Open(nil, raw[:ns], raw[ns:], nil)
		if openErr == nil {
			return string(plain), nil
		}
	}

	return "", ErrDecrypt
}

// Mask returns a display-safe rendering of a secret.
func (v *Vault) Mask(plaintext string) string {
	return Mask(plaintext)
}

// Mask keeps the first six and last four characters of a secret and hides
// the rest. Secrets too short to mask safely render as "****".
func Mask(plaintext string) string {
	r := []rune(plaintext)
	if len(r) <= 12 {
		return "****"
	}
	return string(r[:6]) + "..." + string(r[len(r)-4:])
}

func (v *Vault) keys() []cipher.AEAD {
	return append([]cipher.AEAD{v.current}, v.previous...)
}

func newAEAD(masterKey []byte) (cipher.AEAD, error) {
	if len(masterKey) < MinKeyLength {
		return nil, ErrInvalidKey
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(derivation)), key); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create gcm: %w", err)
	}
	return aead, nil
}
