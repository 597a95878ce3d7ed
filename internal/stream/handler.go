// Package stream serves the authenticated bidirectional channel. Authentication happens once, in
// authkit's handshake gate, before the upgrade; frames on an open connection are not re-checked.
package stream

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tyemirov/tokengate/internal/authkit"
	"go.uber.org/zap"
)

const (
	maxMessageBytes = 64 << 10
	writeTimeout    = 10 * time.Second

	frameTypeWelcome = "welcome"
	frameTypeMessage = "message"
)

// WelcomeFrame is the first frame sent on every connection.
type WelcomeFrame struct {
	Type        string `json:"type"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// MessageFrame echoes a client text frame attributed to the connection's identity.
type MessageFrame struct {
	Type string `json:"type"`
	From string `json:"from"`
	Body string `json:"body"`
}

// Handler upgrades gated requests and runs the echo loop.
type Handler struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler constructs a Handler. With no allowed origins only same-origin browsers may connect.
func NewHandler(logger *zap.Logger, allowedOrigins []string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if origins := normalizeOrigins(allowedOrigins); len(origins) > 0 {
		upgrader.CheckOrigin = func(request *http.Request) bool {
			origin := request.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, allowed := origins[strings.ToLower(strings.TrimRight(origin, "/"))]
			return allowed
		}
	}
	return &Handler{upgrader: upgrader, logger: logger}
}

// Serve must run behind authkit's HandshakeGate; a request without an identity is rejected before upgrading.
func (handler *Handler) Serve(contextGin *gin.Context) {
	identity, ok := authkit.IdentityFromGin(contextGin)
	if !ok {
		contextGin.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	connection, upgradeErr := handler.upgrader.Upgrade(contextGin.Writer, contextGin.Request, nil)
	if upgradeErr != nil {
		handler.logger.Warn("stream upgrade failed",
			zap.String("code", "stream.upgrade_failed"),
			zap.String("handle", identity.Handle),
			zap.Error(upgradeErr))
		return
	}
	defer func() { _ = connection.Close() }()

	handler.logger.Info("stream connected",
		zap.String("code", "stream.connected"),
		zap.String("handle", identity.Handle))
	if err := handler.run(connection, identity); err != nil {
		handler.logger.Debug("stream closed",
			zap.String("code", "stream.closed"),
			zap.String("handle", identity.Handle),
			zap.Error(err))
	}
}

func (handler *Handler) run(connection *websocket.Conn, identity authkit.Identity) error {
	connection.SetReadLimit(maxMessageBytes)
	if err := writeFrame(connection, WelcomeFrame{
		Type:        frameTypeWelcome,
		Handle:      identity.Handle,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
	}); err != nil {
		return err
	}
	for {
		messageType, payload, readErr := connection.ReadMessage()
		if readErr != nil {
			if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return readErr
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := writeFrame(connection, MessageFrame{Type: frameTypeMessage, From: identity.Handle, Body: string(payload)}); err != nil {
			return err
		}
	}
}

func writeFrame(connection *websocket.Conn, frame interface{}) error {
	if err := connection.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := connection.WriteJSON(frame); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}

func normalizeOrigins(allowedOrigins []string) map[string]struct{} {
	normalized := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		parsed, err := url.Parse(trimmed)
		if trimmed == "" || err != nil || parsed.Host == "" {
			continue
		}
		normalized[strings.ToLower(parsed.Scheme+"://"+parsed.Host)] = struct{}{}
	}
	return normalized
}
