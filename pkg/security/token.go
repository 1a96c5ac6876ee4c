package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// InviteSecretBytes is the entropy of an invite secret.
const InviteSecretBytes = 24

// NewSecret returns a url-safe random secret of n bytes of entropy and the
// hex SHA-256 of it. Only the hash may be persisted.
func NewSecret(n int) (raw, hash string, err error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashSecret(raw), nil
}

// HashSecret is the one-way digest under which secrets are stored.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
