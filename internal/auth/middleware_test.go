package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/okklab/reportboard/internal/config"
)

const testSecret = "test-secret"

func newTestMiddleware(skip bool) *Middleware {
	return NewMiddleware(&config.Config{AuthSecret: testSecret, SkipAuth: skip}, zerolog.New(&bytes.Buffer{}))
}

func signToken(t *testing.T, secret string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name: "Olga K.",
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func protected(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		if !ok {
			t.Error("expected claims in context")
		} else if claims.Name == "" {
			t.Error("expected a named user")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareValidToken(t *testing.T) {
	m := newTestMiddleware(false)
	req := httptest.NewRequest(http.MethodGet, "/artifacts/current", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()

	m.Handler(protected(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareTokenFromQuery(t *testing.T) {
	m := newTestMiddleware(false)
	req := httptest.NewRequest(http.MethodGet, "/ws?token="+signToken(t, testSecret, time.Now().Add(time.Hour)), nil)
	rec := httptest.NewRecorder()

	m.Handler(protected(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for query-param token, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	m := newTestMiddleware(false)
	req := httptest.NewRequest(http.MethodGet, "/artifacts/current", nil)
	rec := httptest.NewRecorder()

	m.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	m := newTestMiddleware(false)
	req := httptest.NewRequest(http.MethodGet, "/artifacts/current", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()

	m.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	m := newTestMiddleware(false)
	req := httptest.NewRequest(http.MethodGet, "/artifacts/current", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()

	m.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestMiddlewareHealthIsOpen(t *testing.T) {
	m := newTestMiddleware(false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected health to bypass auth, got %d", rec.Code)
	}
}

func TestMiddlewareSkipAuth(t *testing.T) {
	m := newTestMiddleware(true)
	req := httptest.NewRequest(http.MethodGet, "/artifacts/current", nil)
	rec := httptest.NewRecorder()

	m.Handler(protected(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 with SKIP_AUTH, got %d", rec.Code)
	}
}
