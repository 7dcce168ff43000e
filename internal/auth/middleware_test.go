package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func protectedHandler(m *Middleware) (http.HandlerFunc, *string) {
	var subject string
	h := m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return h, &subject
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	m := NewMiddleware("")
	assert.False(t, m.Enabled())

	h, _ := protectedHandler(m)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/send_message", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidTokenAccepted(t *testing.T) {
	m := NewMiddleware(testSecret)
	h, subject := protectedHandler(m)

	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "operator-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	req := httptest.NewRequest(http.MethodPost, "/send_message", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator-1", *subject)
}

func TestMissingHeaderRejected(t *testing.T) {
	m := NewMiddleware(testSecret)
	h, _ := protectedHandler(m)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/send_message", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"authentication required"}`, rec.Body.String())
}

func TestWrongSecretRejected(t *testing.T) {
	m := NewMiddleware(testSecret)
	h, _ := protectedHandler(m)

	token := signToken(t, "some-other-secret", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	req := httptest.NewRequest(http.MethodPost, "/send_message", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	m := NewMiddleware(testSecret)
	h, _ := protectedHandler(m)

	token := signToken(t, testSecret, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})

	req := httptest.NewRequest(http.MethodPost, "/send_message", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpointSkipsAuth(t *testing.T) {
	m := NewMiddleware(testSecret)
	h, _ := protectedHandler(m)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
