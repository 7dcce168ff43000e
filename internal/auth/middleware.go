package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is used for storing claims in request context.
type ContextKey string

// ClaimsKey holds the verified *jwt.RegisteredClaims.
const ClaimsKey ContextKey = "claims"

// Middleware verifies bearer tokens on incoming requests.
type Middleware struct {
	secret []byte
}

// NewMiddleware creates the middleware. An empty secret disables
// authentication entirely.
func NewMiddleware(secret string) *Middleware {
	return &Middleware{secret: []byte(secret)}
}

// Enabled reports whether requests are actually checked.
func (m *Middleware) Enabled() bool {
	return len(m.secret) > 0
}

// RequireAuth wraps a handler with bearer-token verification. The health
// endpoint stays open so probes work without credentials.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	if !m.Enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/health" {
			next(w, r)
			return
		}

		token, err := extractBearerToken(r)
		if err != nil {
			writeUnauthorized(w, "authentication required")
			return
		}

		claims, err := m.verifyToken(token)
		if err != nil {
			writeUnauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// verifyToken parses and validates an HS256 token.
func (m *Middleware) verifyToken(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("malformed Authorization header")
	}
	return parts[1], nil
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}

// SubjectFromContext returns the token subject, or "" when auth is off.
func SubjectFromContext(ctx context.Context) string {
	if claims, ok := ctx.Value(ClaimsKey).(*jwt.RegisteredClaims); ok {
		return claims.Subject
	}
	return ""
}
