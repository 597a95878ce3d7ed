package authkit

import (
	"net/http"
	"time"
)

// ServerConfig configures token lifetimes, cookies, and login redirects.
type ServerConfig struct {
	GoogleWebClientID string
	JWTSigningKey     []byte
	JWTIssuer         string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	RevocationTTL     time.Duration
	RefreshCookieName string
	CookieDomain      string
	LoginRedirectURL  string
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
}
