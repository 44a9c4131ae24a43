package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// secretBytes is the amount of entropy in an opaque secret before encoding.
const secretBytes = 128

// NewSecret returns a URL-safe random secret.
func (m *Manager) NewSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest returns the SHA-256 digest stored in place of the secret.
func (m *Manager) Digest(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// VerifyDigest recomputes the digest of secret and compares it in constant
// time with stored.
func (m *Manager) VerifyDigest(secret string, stored []byte) bool {
	if secret == "" || len(stored) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(m.Digest(secret), stored) == 1
}
