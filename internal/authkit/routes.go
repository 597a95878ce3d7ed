package authkit

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tokengate/internal/revocation"
	"github.com/tyemirov/tokengate/pkg/tokencodec"
	"go.uber.org/zap"
)

// AuthServices bundles the collaborators behind the auth routes.
type AuthServices struct {
	Codec           *tokencodec.Codec
	Login           *LoginService
	Sessions        *SessionIssuer
	Revocations     revocation.Store
	States          StateStore
	Providers       *ProviderRegistry
	GoogleValidator GoogleTokenValidator
	Logger          *zap.Logger
	Metrics         MetricsRecorder
}

type authHandlers struct {
	configuration ServerConfig
	services      AuthServices
	logger        *zap.Logger
	metrics       MetricsRecorder
}

// MountAuthRoutes registers the provider login flows, /auth/google, /auth/refresh and /auth/logout.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, services AuthServices) {
	if services.Codec == nil || services.Login == nil || services.Sessions == nil || services.Revocations == nil {
		panic("codec, login service, session issuer and revocation store are required")
	}
	handlers := &authHandlers{
		configuration: configuration,
		services:      services,
		logger:        services.Logger,
		metrics:       services.Metrics,
	}
	if handlers.logger == nil {
		handlers.logger = zap.NewNop()
	}
	if handlers.metrics == nil {
		handlers.metrics = noopMetrics{}
	}

	router.GET("/oauth2/authorization/:provider", handlers.handleAuthorize)
	router.GET("/login/oauth2/code/:provider", handlers.handleCallback)
	router.POST("/auth/google", handlers.handleGoogleIDToken)
	router.GET("/auth/refresh", handlers.handleRefresh)
	router.POST("/auth/logout", handlers.handleLogout)
}

func (handlers *authHandlers) handleAuthorize(contextGin *gin.Context) {
	client, providerErr := handlers.services.Providers.Get(contextGin.Param("provider"))
	if providerErr != nil {
		handlers.rejectUnsupportedProvider(contextGin, providerErr)
		return
	}
	if handlers.services.States == nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	state, stateErr := handlers.services.States.Issue(contextGin.Request.Context(), client.Provider())
	if stateErr != nil {
		handlers.logger.Error("oauth state issuance failed",
			zap.String("code", "auth.authorize.state_failed"),
			zap.Error(stateErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Redirect(http.StatusFound, client.AuthCodeURL(state))
}

func (handlers *authHandlers) handleCallback(contextGin *gin.Context) {
	client, providerErr := handlers.services.Providers.Get(contextGin.Param("provider"))
	if providerErr != nil {
		handlers.rejectUnsupportedProvider(contextGin, providerErr)
		return
	}
	code := strings.TrimSpace(contextGin.Query("code"))
	state := strings.TrimSpace(contextGin.Query("state"))
	if code == "" || state == "" || contextGin.Query("error") != "" {
		handlers.metrics.Increment(metricAuthLoginFailure)
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_callback"})
		return
	}
	if handlers.services.States == nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if consumeErr := handlers.services.States.Consume(contextGin.Request.Context(), state, client.Provider()); consumeErr != nil {
		handlers.metrics.Increment(metricAuthLoginFailure)
		handlers.logger.Warn("oauth state rejected",
			zap.String("code", "auth.callback.invalid_state"),
			zap.String("provider", string(client.Provider())),
			zap.Error(consumeErr))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_state"})
		return
	}
	attributes, fetchErr := client.FetchAttributes(contextGin.Request.Context(), code)
	if fetchErr != nil {
		handlers.metrics.Increment(metricAuthLoginFailure)
		handlers.logger.Warn("provider exchange failed",
			zap.String("code", "auth.callback.exchange_failed"),
			zap.String("provider", string(client.Provider())),
			zap.Error(fetchErr))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "provider_exchange_failed"})
		return
	}
	session, _, loginErr := handlers.services.Login.CompleteLogin(contextGin.Request.Context(), string(client.Provider()), attributes)
	if loginErr != nil {
		respondLoginError(contextGin, loginErr)
		return
	}

	writeRefreshCookie(contextGin, handlers.configuration, session.RefreshToken.Value)
	if strings.TrimSpace(handlers.configuration.LoginRedirectURL) == "" {
		contextGin.JSON(http.StatusOK, gin.H{"accessToken": session.AccessToken.Value})
		return
	}
	target, redirectErr := loginRedirectURL(handlers.configuration.LoginRedirectURL, session.AccessToken.Value)
	if redirectErr != nil {
		handlers.logger.Error("login redirect url invalid",
			zap.String("code", "auth.callback.redirect_invalid"),
			zap.Error(redirectErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	contextGin.Redirect(http.StatusFound, target)
}

func (handlers *authHandlers) handleGoogleIDToken(contextGin *gin.Context) {
	var inbound struct {
		GoogleIDToken string `json:"google_id_token"`
	}
	if err := contextGin.BindJSON(&inbound); err != nil || strings.TrimSpace(inbound.GoogleIDToken) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	if !handlers.configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "https_required"})
		return
	}
	if handlers.services.GoogleValidator == nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	payload, validateErr := handlers.services.GoogleValidator.Validate(contextGin.Request.Context(), inbound.GoogleIDToken, handlers.configuration.GoogleWebClientID)
	if validateErr != nil {
		handlers.metrics.Increment(metricAuthLoginFailure)
		handlers.logger.Warn("google id token rejected",
			zap.String("code", "auth.google.invalid_token"),
			zap.Error(validateErr))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_google_token"})
		return
	}
	issuerValue, okIssuer := payload.Claims["iss"].(string)
	if !okIssuer || (issuerValue != "https://accounts.google.com" && issuerValue != "accounts.google.com") {
		handlers.metrics.Increment(metricAuthLoginFailure)
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_issuer"})
		return
	}
	if email, _ := payload.Claims["email"].(string); email != "" {
		if emailVerified, _ := payload.Claims["email_verified"].(bool); !emailVerified {
			handlers.metrics.Increment(metricAuthLoginFailure)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unverified_identity"})
			return
		}
	}

	session, _, loginErr := handlers.services.Login.CompleteLogin(contextGin.Request.Context(), string(ProviderGoogle), payload.Claims)
	if loginErr != nil {
		respondLoginError(contextGin, loginErr)
		return
	}
	writeRefreshCookie(contextGin, handlers.configuration, session.RefreshToken.Value)
	contextGin.JSON(http.StatusOK, gin.H{"accessToken": session.AccessToken.Value})
}

// handleRefresh mints a new access token from the refresh cookie. The refresh token is not rotated,
// and a rejected request leaves the cookie as it was.
func (handlers *authHandlers) handleRefresh(contextGin *gin.Context) {
	refreshCookie, cookieErr := contextGin.Request.Cookie(refreshCookieName(handlers.configuration))
	if cookieErr != nil || refreshCookie == nil || strings.TrimSpace(refreshCookie.Value) == "" {
		handlers.rejectRefresh(contextGin, "auth.refresh.missing_cookie", nil)
		return
	}
	refreshToken := refreshCookie.Value

	claims, verifyErr := handlers.services.Codec.VerifyActive(refreshToken, tokencodec.TokenTypeRefresh)
	if verifyErr != nil {
		handlers.rejectRefresh(contextGin, "auth.refresh.invalid_token", verifyErr)
		return
	}
	revoked, lookupErr := handlers.services.Revocations.IsRevoked(contextGin.Request.Context(), refreshToken)
	if lookupErr != nil {
		handlers.metrics.Increment(metricAuthRevocationLookupErr)
		handlers.rejectRefresh(contextGin, "auth.refresh.revocation_lookup_failed", lookupErr)
		return
	}
	if revoked {
		handlers.rejectRefresh(contextGin, "auth.refresh.revoked", ErrRevokedToken)
		return
	}

	accessToken, issueErr := handlers.services.Sessions.IssueAccessFrom(claims)
	if issueErr != nil {
		handlers.metrics.Increment(metricAuthRefreshFailure)
		handlers.logger.Error("access token issuance failed",
			zap.String("code", "auth.refresh.issue_failed"),
			zap.Error(issueErr))
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	handlers.metrics.Increment(metricAuthRefreshSuccess)
	contextGin.JSON(http.StatusOK, gin.H{"accessToken": accessToken.Value})
}

// handleLogout revokes the presented access and refresh tokens. Expired tokens are still accepted;
// a request where no presented token verifies is rejected.
func (handlers *authHandlers) handleLogout(contextGin *gin.Context) {
	presented := make([]string, 0, 2)
	if accessToken, ok := tokencodec.BearerFromRequest(contextGin.Request); ok {
		presented = append(presented, accessToken)
	}
	if refreshCookie, cookieErr := contextGin.Request.Cookie(refreshCookieName(handlers.configuration)); cookieErr == nil && strings.TrimSpace(refreshCookie.Value) != "" {
		presented = append(presented, refreshCookie.Value)
	}
	if len(presented) == 0 {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing_token"})
		return
	}

	now := handlers.services.Codec.Now()
	verified := 0
	for _, token := range presented {
		claims, parseErr := handlers.services.Codec.ParseAndVerify(token)
		if parseErr != nil {
			handlers.logger.Debug("logout token ignored",
				zap.String("code", "auth.logout.unverified_token"),
				zap.Error(parseErr))
			continue
		}
		verified++
		ttl := revocationTTL(handlers.configuration.RevocationTTL, claims.RemainingLifetime(now))
		if ttl <= 0 {
			continue
		}
		if revokeErr := handlers.services.Revocations.Revoke(contextGin.Request.Context(), token, ttl); revokeErr != nil {
			handlers.logger.Error("token revocation failed",
				zap.String("code", "auth.logout.revoke_failed"),
				zap.String("token_type", string(claims.Type())),
				zap.Error(revokeErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "revocation_failed"})
			return
		}
	}

	if verified == 0 {
		handlers.metrics.Increment(metricAuthLogoutRejected)
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	clearRefreshCookie(contextGin, handlers.configuration)
	handlers.metrics.Increment(metricAuthLogoutSuccess)
	contextGin.Status(http.StatusNoContent)
}

func (handlers *authHandlers) rejectRefresh(contextGin *gin.Context, code string, reason error) {
	handlers.metrics.Increment(metricAuthRefreshFailure)
	fields := []zap.Field{zap.String("code", code)}
	if reason != nil {
		fields = append(fields, zap.Error(reason))
	}
	handlers.logger.Debug("refresh rejected", fields...)
	contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_refresh_token"})
}

func (handlers *authHandlers) rejectUnsupportedProvider(contextGin *gin.Context, reason error) {
	handlers.metrics.Increment(metricAuthLoginFailure)
	handlers.logger.Warn("unsupported provider requested",
		zap.String("code", "auth.login.unsupported_provider"),
		zap.String("provider", contextGin.Param("provider")),
		zap.Error(reason))
	contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported_provider"})
}

func respondLoginError(contextGin *gin.Context, loginErr error) {
	switch {
	case errors.Is(loginErr, ErrUnsupportedProvider):
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported_provider"})
	case errors.Is(loginErr, ErrIncompleteProviderIdentity):
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "incomplete_identity"})
	default:
		contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
	}
}

// revocationTTL keeps a revoked token blacklisted for at least as long as it could still verify.
func revocationTTL(window time.Duration, remaining time.Duration) time.Duration {
	if remaining > window {
		return remaining
	}
	return window
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	scheme := request.Header.Get("X-Forwarded-Proto")
	if strings.EqualFold(scheme, "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
