package authkit

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tokengate/pkg/tokencodec"
)

const ginIdentityKey = "auth_identity"

type identityContextKey struct{}

// Identity is the caller derived from a verified access token. It lives for one request or connection.
type Identity struct {
	Handle      string
	DisplayName string
	Role        string
}

func identityFromClaims(claims *tokencodec.Claims) Identity {
	return Identity{
		Handle:      claims.Handle(),
		DisplayName: claims.GetDisplayName(),
		Role:        claims.GetRole(),
	}
}

// ContextWithIdentity returns a copy of ctx carrying identity.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity attached by the authenticator, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// IdentityFromGin returns the identity attached to the gin context, if any.
func IdentityFromGin(contextGin *gin.Context) (Identity, bool) {
	value, found := contextGin.Get(ginIdentityKey)
	if !found {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok
}

func attachIdentity(contextGin *gin.Context, identity Identity) {
	contextGin.Set(ginIdentityKey, identity)
	contextGin.Request = contextGin.Request.WithContext(ContextWithIdentity(contextGin.Request.Context(), identity))
}
