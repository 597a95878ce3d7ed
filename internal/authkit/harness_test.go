package authkit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tokengate/internal/revocation"
	"github.com/tyemirov/tokengate/pkg/tokencodec"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/idtoken"
)

type controllableClock struct {
	current time.Time
}

func (clock *controllableClock) Now() time.Time {
	return clock.current
}

func (clock *controllableClock) Advance(duration time.Duration) {
	clock.current = clock.current.Add(duration)
}

type validatorResult struct {
	payload          *idtoken.Payload
	err              error
	expectedAudience string
}

type fakeGoogleValidator struct {
	results map[string]validatorResult
}

func (validator *fakeGoogleValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	result, ok := validator.results[token]
	if !ok {
		return nil, errors.New("token_not_found")
	}
	if result.expectedAudience != "" && result.expectedAudience != audience {
		return nil, errors.New("unexpected_audience")
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.payload, nil
}

func newTestServerConfig() ServerConfig {
	return ServerConfig{
		GoogleWebClientID: "client-id",
		JWTSigningKey:     []byte("secret-key-1234567890"),
		JWTIssuer:         "tokengate-test",
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        24 * time.Hour,
		RevocationTTL:     time.Hour,
		RefreshCookieName: "refresh_token",
		LoginRedirectURL:  "https://app.example.com/login/success",
		SameSiteMode:      http.SameSiteStrictMode,
		AllowInsecureHTTP: true,
	}
}

type authHarness struct {
	config        ServerConfig
	clock         *controllableClock
	codec         *tokencodec.Codec
	users         *MemoryUserStore
	revocations   *revocation.MemoryStore
	sessions      *SessionIssuer
	metrics       *countingMetrics
	authenticator *Authenticator
	router        *gin.Engine
}

type harnessOptions struct {
	providers *ProviderRegistry
	validator GoogleTokenValidator
	configure func(*ServerConfig)
}

func newAuthHarness(t *testing.T, options harnessOptions) *authHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config := newTestServerConfig()
	if options.configure != nil {
		options.configure(&config)
	}
	clock := &controllableClock{current: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	codec, err := tokencodec.New(tokencodec.Config{SigningKey: config.JWTSigningKey, Issuer: config.JWTIssuer, Clock: clock})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	logger := zaptest.NewLogger(t)
	metrics := newCountingMetrics()
	users := NewMemoryUserStore()
	revocations := revocation.NewMemoryStore()
	sessions := NewSessionIssuer(codec, config.AccessTTL, config.RefreshTTL)
	login := NewLoginService(NewReconciler(users), sessions, logger, metrics)
	authenticator := NewAuthenticator(codec, revocations, logger, metrics)

	router := gin.New()
	MountAuthRoutes(router, config, AuthServices{
		Codec:           codec,
		Login:           login,
		Sessions:        sessions,
		Revocations:     revocations,
		States:          NewMemoryStateStore(time.Minute),
		Providers:       options.providers,
		GoogleValidator: options.validator,
		Logger:          logger,
		Metrics:         metrics,
	})
	router.GET("/optional", authenticator.Middleware(), func(contextGin *gin.Context) {
		identity, ok := IdentityFromGin(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{"authenticated": ok, "handle": identity.Handle})
	})
	router.GET("/protected", authenticator.Middleware(), RequireIdentity(), func(contextGin *gin.Context) {
		identity, _ := IdentityFromContext(contextGin.Request.Context())
		contextGin.JSON(http.StatusOK, gin.H{"handle": identity.Handle})
	})
	router.GET("/admin", authenticator.Middleware(), RequireRole(RoleAdmin), func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})
	router.GET("/stream", authenticator.HandshakeGate(), func(contextGin *gin.Context) {
		identity, _ := IdentityFromGin(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{"handle": identity.Handle})
	})

	return &authHarness{
		config:        config,
		clock:         clock,
		codec:         codec,
		users:         users,
		revocations:   revocations,
		sessions:      sessions,
		metrics:       metrics,
		authenticator: authenticator,
		router:        router,
	}
}

func (harness *authHarness) issueSession(t *testing.T, handle string, role string) Session {
	t.Helper()
	session, err := harness.sessions.Issue(ReconciledUser{Handle: handle, DisplayName: "Ada", Role: role})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return session
}

func (harness *authHarness) serve(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func withBearer(request *http.Request, token string) *http.Request {
	request.Header.Set("Authorization", "Bearer "+token)
	return request
}

func withRefreshCookie(request *http.Request, config ServerConfig, token string) *http.Request {
	request.AddCookie(&http.Cookie{Name: config.RefreshCookieName, Value: token})
	return request
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
