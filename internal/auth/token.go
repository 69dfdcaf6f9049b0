package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btouchard/firstblood/internal/config"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrInsufficientScope = errors.New("insufficient scope")
)

// HashToken returns the hex-encoded SHA-256 of a raw token. Only hashes are stored.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// GenerateToken returns a new random 256-bit hex token.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// TokenSet validates bearer tokens against the configured hashes.
type TokenSet struct {
	entries []config.APITokenEntry
}

// NewTokenSet creates a TokenSet from config entries.
func NewTokenSet(entries []config.APITokenEntry) *TokenSet {
	return &TokenSet{entries: entries}
}

// Validate returns the entry for raw if it exists and grants scope.
// The "*" scope grants everything.
func (ts *TokenSet) Validate(raw, scope string) (*config.APITokenEntry, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	hash := []byte(HashToken(raw))

	for i := range ts.entries {
		e := &ts.entries[i]
		if subtle.ConstantTimeCompare(hash, []byte(e.TokenHash)) != 1 {
			continue
		}
		if e.Scope != config.ScopeAll && e.Scope != scope {
			return nil, ErrInsufficientScope
		}
		return e, nil
	}
	return nil, ErrInvalidToken
}
