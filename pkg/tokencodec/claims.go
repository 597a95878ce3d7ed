package tokencodec

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates access tokens from refresh tokens.
type TokenType string

const (
	// TokenTypeAccess marks short-lived bearer credentials.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh marks long-lived credentials used only to mint access tokens.
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether the token type is one the codec issues.
func (tokenType TokenType) Valid() bool {
	return tokenType == TokenTypeAccess || tokenType == TokenTypeRefresh
}

// Claims represent the payload embedded in every issued token.
// The subject carries the provider-qualified user handle. The millisecond
// timestamps are authoritative; the registered iat/exp claims are kept at
// second precision for generic JWT tooling.
type Claims struct {
	TokenType       TokenType `json:"token_type"`
	Role            string    `json:"role"`
	DisplayName     string    `json:"display_name"`
	IssuedAtMillis  int64     `json:"iat_ms"`
	ExpiresAtMillis int64     `json:"exp_ms"`
	jwt.RegisteredClaims
}

// Type returns the token type discriminator.
func (claims *Claims) Type() TokenType {
	if claims == nil {
		return ""
	}
	return claims.TokenType
}

// Handle returns the user handle stored in the subject claim.
func (claims *Claims) Handle() string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// GetRole returns the role stored in the token.
func (claims *Claims) GetRole() string {
	if claims == nil {
		return ""
	}
	return claims.Role
}

// GetDisplayName returns the display name stored in the token.
func (claims *Claims) GetDisplayName() string {
	if claims == nil {
		return ""
	}
	return claims.DisplayName
}

// GetIssuedAtTime returns the issue timestamp.
func (claims *Claims) GetIssuedAtTime() time.Time {
	if claims == nil || claims.IssuedAtMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(claims.IssuedAtMillis).UTC()
}

// GetExpiresAtTime returns the expiry timestamp.
func (claims *Claims) GetExpiresAtTime() time.Time {
	if claims == nil || claims.ExpiresAtMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(claims.ExpiresAtMillis).UTC()
}

// Expired reports whether now has reached the embedded expiry.
// Tokens without an expiry claim are treated as expired.
func (claims *Claims) Expired(now time.Time) bool {
	if claims == nil || claims.ExpiresAtMillis == 0 {
		return true
	}
	return !now.Before(claims.GetExpiresAtTime())
}

// RemainingLifetime returns how long the token stays valid after now, or zero.
func (claims *Claims) RemainingLifetime(now time.Time) time.Duration {
	if claims.Expired(now) {
		return 0
	}
	return claims.GetExpiresAtTime().Sub(now)
}
