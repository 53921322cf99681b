package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/config"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:         "testservlet",
		BasicAuthPassword: "hunter2",
	}
	limiter := ratelimit.PerMinute(60, 10)
	t.Cleanup(limiter.Stop)
	mw := NewMiddleware(cfg, limiter, discardLogger())

	tests := []struct {
		name           string
		prepare        func(r *http.Request)
		expectedStatus int
		expectedAdmin  string
		challenge      bool
	}{
		{
			name:           "No credentials",
			prepare:        func(r *http.Request) {},
			expectedStatus: http.StatusUnauthorized,
			challenge:      true,
		},
		{
			name: "Invalid cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "auth_token", Value: "invalid"})
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Valid cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "auth_token", Value: generateTestToken(t, cfg.JWTSecret, 5*time.Minute)})
			},
			expectedStatus: http.StatusOK,
			expectedAdmin:  "test@example.com",
		},
		{
			name: "Expired cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "auth_token", Value: generateTestToken(t, cfg.JWTSecret, -time.Minute)})
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Token signed with another secret",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+generateTestToken(t, "other", 5*time.Minute))
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "Valid bearer",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+generateTestToken(t, cfg.JWTSecret, 5*time.Minute))
			},
			expectedStatus: http.StatusOK,
			expectedAdmin:  "test@example.com",
		},
		{
			name:           "Basic with correct password",
			prepare:        func(r *http.Request) { r.SetBasicAuth("ops", "hunter2") },
			expectedStatus: http.StatusOK,
			expectedAdmin:  "ops",
		},
		{
			name:           "Basic with wrong password",
			prepare:        func(r *http.Request) { r.SetBasicAuth("ops", "nope") },
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/export", nil)
			tt.prepare(req)

			var admin string
			rr := httptest.NewRecorder()
			handler := mw.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				admin = AdminFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedAdmin, admin)
			if tt.challenge {
				assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "Basic")
			}
		})
	}
}

func TestAuthMiddleware_BasicDisabledWithoutPassword(t *testing.T) {
	limiter := ratelimit.PerMinute(60, 10)
	t.Cleanup(limiter.Stop)
	mw := NewMiddleware(&config.Config{JWTSecret: "s"}, limiter, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/export", nil)
	req.SetBasicAuth("admin", "")
	rr := httptest.NewRecorder()
	mw.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.PerMinute(1, 2)
	t.Cleanup(limiter.Stop)
	mw := NewMiddleware(&config.Config{}, limiter, discardLogger())
	handler := mw.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=x", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1:1111"))
	assert.Equal(t, http.StatusOK, call("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:3333"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2:1111"), "other clients keep their own bucket")
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("Referrer-Policy"))
}

func generateTestToken(t *testing.T, secret string, ttl time.Duration) string {
	t.Helper()
	claims := &jwt.RegisteredClaims{
		Subject:   "test@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tokenString
}

func TestAuthMiddleware_EmptySecretDisablesJWT(t *testing.T) {
	limiter := ratelimit.PerMinute(60, 10)
	t.Cleanup(limiter.Stop)
	mw := NewMiddleware(&config.Config{JWTSecret: ""}, limiter, discardLogger())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	forged := generateTestToken(t, "", 5*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/export", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rr := httptest.NewRecorder()
	mw.AuthMiddleware(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/export", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: forged})
	rr = httptest.NewRecorder()
	mw.AuthMiddleware(next).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRealIP(t *testing.T) {
	limiter := ratelimit.PerMinute(60, 10)
	t.Cleanup(limiter.Stop)

	tests := []struct {
		name    string
		trusted []string
		peer    string
		want    string
	}{
		{name: "no trusted proxies", peer: "192.0.2.1:5000", want: "192.0.2.1"},
		{name: "untrusted peer", trusted: []string{"10.0.0.0/8"}, peer: "192.0.2.1:5000", want: "192.0.2.1"},
		{name: "trusted cidr", trusted: []string{"10.0.0.0/8"}, peer: "10.1.2.3:5000", want: "203.0.113.9"},
		{name: "trusted single ip", trusted: []string{"10.1.2.3"}, peer: "10.1.2.3:5000", want: "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewMiddleware(&config.Config{TrustedProxies: tt.trusted}, limiter, discardLogger())

			var got string
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.peer
			req.Header.Set("X-Forwarded-For", "203.0.113.9")
			mw.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = clientIP(r)
			})).ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}
