package tokencodec

import (
	"net/http"
	"strings"
)

// BearerScheme is the only Authorization scheme the service accepts.
const BearerScheme = "Bearer"

// ExtractBearer returns the token carried by an "Authorization: Bearer <token>" header value.
func ExtractBearer(headerValue string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(headerValue), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], BearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// BearerFromRequest reads the bearer token from the request's Authorization header.
func BearerFromRequest(request *http.Request) (string, bool) {
	if request == nil {
		return "", false
	}
	return ExtractBearer(request.Header.Get("Authorization"))
}
