package authkit

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tokengate/pkg/tokencodec"
)

func TestSessionIssuerMintsTypedPair(t *testing.T) {
	t.Parallel()
	clock := &controllableClock{current: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	codec, err := tokencodec.New(tokencodec.Config{SigningKey: []byte("secret"), Issuer: "tokengate-test", Clock: clock})
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	issuer := NewSessionIssuer(codec, 15*time.Minute, 14*24*time.Hour)

	session, err := issuer.Issue(ReconciledUser{Handle: "google 123", DisplayName: "Ada", Role: RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if session.AccessToken.ExpiresAt.Sub(clock.Now()) != 15*time.Minute {
		t.Fatalf("unexpected access expiry %v", session.AccessToken.ExpiresAt)
	}
	if session.RefreshToken.ExpiresAt.Sub(clock.Now()) != 14*24*time.Hour {
		t.Fatalf("unexpected refresh expiry %v", session.RefreshToken.ExpiresAt)
	}
	accessClaims, err := codec.VerifyActive(session.AccessToken.Value, tokencodec.TokenTypeAccess)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	refreshClaims, err := codec.VerifyActive(session.RefreshToken.Value, tokencodec.TokenTypeRefresh)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if accessClaims.Handle() != refreshClaims.Handle() || refreshClaims.GetRole() != RoleUser {
		t.Fatalf("expected both tokens to carry the same identity")
	}

	if _, err := issuer.Issue(ReconciledUser{}); err == nil {
		t.Fatalf("expected empty handle to be rejected")
	}
}

func TestRefreshCookieAttributes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testCases := []struct {
		name       string
		config     ServerConfig
		wantName   string
		wantSecure bool
	}{
		{
			name:       "defaults",
			config:     ServerConfig{RefreshTTL: time.Hour, SameSiteMode: http.SameSiteStrictMode},
			wantName:   "refresh_token",
			wantSecure: true,
		},
		{
			name:       "custom name over plain http",
			config:     ServerConfig{RefreshTTL: 2 * time.Hour, RefreshCookieName: "rt", AllowInsecureHTTP: true, SameSiteMode: http.SameSiteLaxMode},
			wantName:   "rt",
			wantSecure: false,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			contextGin, _ := gin.CreateTestContext(recorder)
			writeRefreshCookie(contextGin, testCase.config, "token-value")

			cookie := findCookie(recorder.Result().Cookies(), testCase.wantName)
			if cookie == nil {
				t.Fatalf("expected cookie %q", testCase.wantName)
			}
			if cookie.Value != "token-value" || !cookie.HttpOnly || cookie.Path != "/" || cookie.Secure != testCase.wantSecure {
				t.Fatalf("unexpected cookie %#v", cookie)
			}
			if cookie.MaxAge != int(testCase.config.RefreshTTL/time.Second) {
				t.Fatalf("expected max-age %d, got %d", int(testCase.config.RefreshTTL/time.Second), cookie.MaxAge)
			}
			if cookie.SameSite != testCase.config.SameSiteMode {
				t.Fatalf("expected same-site %v, got %v", testCase.config.SameSiteMode, cookie.SameSite)
			}
		})
	}
}

func TestLoginRedirectURLKeepsExistingQuery(t *testing.T) {
	t.Parallel()
	target, err := loginRedirectURL("https://app.example.com/done?tab=home", "a.b.c")
	if err != nil {
		t.Fatalf("redirect: %v", err)
	}
	parsed, _ := url.Parse(target)
	if parsed.Query().Get("tab") != "home" || parsed.Query().Get(accessTokenQueryParam) != "a.b.c" {
		t.Fatalf("unexpected redirect %q", target)
	}
	if _, err := loginRedirectURL("://bad", "a.b.c"); err == nil {
		t.Fatalf("expected invalid base url to fail")
	}
}
