package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthHandler enforces the optional shared-secret on API and websocket
// requests. An empty secret disables authentication.
type AuthHandler struct {
	sharedSecret string
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{
		sharedSecret: sharedSecret,
	}
}

// Authorize checks the request's credentials. The secret is accepted as a
// bearer token or, for websocket clients that cannot set headers, as a
// "secret" query parameter.
func (a *AuthHandler) Authorize(r *http.Request) bool {
	if a.sharedSecret == "" {
		return true
	}

	presented := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		presented = strings.TrimPrefix(auth, "Bearer ")
	} else if q := r.URL.Query().Get("secret"); q != "" {
		presented = q
	}

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(presented), []byte(a.sharedSecret)) == 1
}

// Middleware wraps a handler with the authorization check
func (a *AuthHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Authorize(r) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
