package authkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handshakeTokenParam carries the access token on streaming upgrades, where browsers cannot set headers.
const handshakeTokenParam = "token"

// HandshakeGate authenticates a streaming upgrade from the "token" query parameter and rejects
// the handshake with 401 before any upgrade when the token is missing or invalid.
func (authenticator *Authenticator) HandshakeGate() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		accessToken := contextGin.Query(handshakeTokenParam)
		if accessToken == "" {
			authenticator.metrics.Increment(metricAuthHandshakeRejected)
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		identity, resolveErr := authenticator.Resolve(contextGin.Request.Context(), accessToken)
		if resolveErr != nil {
			authenticator.logger.Info("streaming handshake rejected",
				zap.String("code", "auth.handshake.rejected"),
				zap.String("reason", resolveErr.Error()))
			authenticator.metrics.Increment(metricAuthHandshakeRejected)
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		authenticator.metrics.Increment(metricAuthHandshakeAccepted)
		attachIdentity(contextGin, identity)
		contextGin.Next()
	}
}
