package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards the status API with a shared bearer token.
// An empty token disables authentication.
type Auth struct {
	token string
}

func New(token string) *Auth {
	return &Auth{token: token}
}

// IsEnabled returns true if a token is configured
func (a *Auth) IsEnabled() bool {
	return a != nil && a.token != ""
}

// Validate compares the presented token in constant time
func (a *Auth) Validate(token string) bool {
	return subtle.ConstantTimeCompare([]byte(a.token), []byte(token)) == 1
}

// TokenFromRequest extracts the token from an "Authorization: Bearer" header
func TokenFromRequest(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Middleware rejects requests without the configured token
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.IsEnabled() || a.Validate(TokenFromRequest(r)) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("WWW-Authenticate", `Bearer realm="lambder"`)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "Authentication required"}`))
	})
}
