package authkit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tokengate/internal/revocation"
	"github.com/tyemirov/tokengate/pkg/tokencodec"
	"go.uber.org/zap"
)

// Authenticator validates access tokens and derives request identities. It never writes tokens.
type Authenticator struct {
	codec       *tokencodec.Codec
	revocations revocation.Store
	logger      *zap.Logger
	metrics     MetricsRecorder
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(codec *tokencodec.Codec, revocations revocation.Store, logger *zap.Logger, metrics MetricsRecorder) *Authenticator {
	if codec == nil {
		panic("token codec is required")
	}
	if revocations == nil {
		panic("revocation store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Authenticator{codec: codec, revocations: revocations, logger: logger, metrics: metrics}
}

// Resolve verifies an access token and returns the identity it carries.
// Failures wrap tokencodec sentinels or ErrRevokedToken.
func (authenticator *Authenticator) Resolve(ctx context.Context, accessToken string) (Identity, error) {
	claims, verifyErr := authenticator.codec.VerifyActive(accessToken, tokencodec.TokenTypeAccess)
	if verifyErr != nil {
		return Identity{}, verifyErr
	}
	revoked, lookupErr := authenticator.revocations.IsRevoked(ctx, accessToken)
	if lookupErr != nil {
		authenticator.metrics.Increment(metricAuthRevocationLookupErr)
		return Identity{}, fmt.Errorf("auth.resolve.revocation_lookup: %w", lookupErr)
	}
	if revoked {
		return Identity{}, fmt.Errorf("auth.resolve: %w", ErrRevokedToken)
	}
	return identityFromClaims(claims), nil
}

// Middleware attaches the identity of a valid bearer token and otherwise lets the request
// continue anonymously; RequireIdentity decides per route whether that is acceptable.
func (authenticator *Authenticator) Middleware() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		accessToken, present := tokencodec.BearerFromRequest(contextGin.Request)
		if !present {
			authenticator.metrics.Increment(metricAuthRequestAnonymous)
			contextGin.Next()
			return
		}
		identity, resolveErr := authenticator.Resolve(contextGin.Request.Context(), accessToken)
		if resolveErr != nil {
			authenticator.logger.Debug("bearer token not accepted",
				zap.String("code", "auth.request.unauthenticated"),
				zap.String("reason", resolveErr.Error()))
			authenticator.metrics.Increment(metricAuthRequestAnonymous)
			contextGin.Next()
			return
		}
		authenticator.metrics.Increment(metricAuthRequestIdentified)
		attachIdentity(contextGin, identity)
		contextGin.Next()
	}
}

// RequireIdentity rejects requests that reached it without an authenticated identity.
func RequireIdentity() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if _, ok := IdentityFromGin(contextGin); !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		contextGin.Next()
	}
}

// RequireRole rejects authenticated callers that do not hold role.
func RequireRole(role string) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		identity, ok := IdentityFromGin(contextGin)
		if !ok {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if identity.Role != role {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		contextGin.Next()
	}
}
