// Package revocation records explicitly invalidated tokens until their blacklist window elapses.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptyToken indicates that an empty token was supplied.
	ErrEmptyToken = errors.New("revocation.empty_token")
	// ErrInvalidTTL indicates a non-positive blacklist window.
	ErrInvalidTTL = errors.New("revocation.invalid_ttl")
)

const revokedMarker = "1"

// Store records revoked tokens for a bounded time.
type Store interface {
	// Revoke blacklists the token for exactly ttl.
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	// IsRevoked reports whether the token is currently blacklisted.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// tokenKey derives the storage key so raw tokens are never kept.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func validateRevoke(token string, ttl time.Duration) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
