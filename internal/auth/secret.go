package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecretGate checks a shared secret in constant time. Both sides are hashed
// first so the comparison does not leak the secret's length.
type SecretGate struct {
	digest [sha256.Size]byte
}

// NewSecretGate creates a gate for secret.
func NewSecretGate(secret string) *SecretGate {
	return &SecretGate{digest: sha256.Sum256([]byte(secret))}
}

// Allow reports whether candidate equals the configured secret.
func (g *SecretGate) Allow(candidate string) bool {
	d := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(g.digest[:], d[:]) == 1
}
