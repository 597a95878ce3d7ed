package authkit

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tokengate/pkg/tokencodec"
)

const (
	defaultRefreshCookieName = "refresh_token"
	accessTokenQueryParam    = "accessToken"
)

// Session holds the token pair minted on login.
type Session struct {
	AccessToken  tokencodec.Token
	RefreshToken tokencodec.Token
}

// SessionIssuer mints access and refresh tokens. It keeps no server-side session record.
type SessionIssuer struct {
	codec      *tokencodec.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewSessionIssuer constructs a SessionIssuer with the configured lifetimes.
func NewSessionIssuer(codec *tokencodec.Codec, accessTTL time.Duration, refreshTTL time.Duration) *SessionIssuer {
	if codec == nil {
		panic("token codec is required")
	}
	return &SessionIssuer{codec: codec, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Issue mints one access token and one refresh token for the user.
func (issuer *SessionIssuer) Issue(user ReconciledUser) (Session, error) {
	accessToken, accessErr := issuer.codec.Issue(tokencodec.TokenTypeAccess, user.Handle, user.Role, user.DisplayName, issuer.accessTTL)
	if accessErr != nil {
		return Session{}, fmt.Errorf("session.issue.access: %w", accessErr)
	}
	refreshToken, refreshErr := issuer.codec.Issue(tokencodec.TokenTypeRefresh, user.Handle, user.Role, user.DisplayName, issuer.refreshTTL)
	if refreshErr != nil {
		return Session{}, fmt.Errorf("session.issue.refresh: %w", refreshErr)
	}
	return Session{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// IssueAccessFrom mints a new access token carrying the identity embedded in a verified refresh token.
func (issuer *SessionIssuer) IssueAccessFrom(refreshClaims *tokencodec.Claims) (tokencodec.Token, error) {
	accessToken, err := issuer.codec.Issue(tokencodec.TokenTypeAccess, refreshClaims.Handle(), refreshClaims.GetRole(), refreshClaims.GetDisplayName(), issuer.accessTTL)
	if err != nil {
		return tokencodec.Token{}, fmt.Errorf("session.issue.refresh_access: %w", err)
	}
	return accessToken, nil
}

func refreshCookieName(configuration ServerConfig) string {
	if strings.TrimSpace(configuration.RefreshCookieName) == "" {
		return defaultRefreshCookieName
	}
	return configuration.RefreshCookieName
}

func writeRefreshCookie(contextGin *gin.Context, configuration ServerConfig, refreshToken string) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     refreshCookieName(configuration),
		Value:    refreshToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   int(configuration.RefreshTTL / time.Second),
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearRefreshCookie(contextGin *gin.Context, configuration ServerConfig) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     refreshCookieName(configuration),
		Value:    "",
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

// loginRedirectURL appends the access token to the post-login redirect target.
func loginRedirectURL(base string, accessToken string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("session.redirect_url: %w", err)
	}
	query := parsed.Query()
	query.Set(accessTokenQueryParam, accessToken)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
