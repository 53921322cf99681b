package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wadjakorntonsri/go-phone-tags/pkg/config"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ratelimit"
)

type contextKey string

const (
	authCookieName = "auth_token"
	basicAuthRealm = "phone-tags admin"

	adminContextKey contextKey = "admin"
)

var (
	errNoCredentials = errors.New("no credentials")
	errWrongPassword = errors.New("wrong password")
)

type Middleware struct {
	jwtSecret      []byte // empty disables JWT auth
	basicPassword  string // empty disables Basic auth
	trustedProxies []netip.Prefix
	limiter        *ratelimit.KeyedRateLimiter
	logger         *slog.Logger
}

func NewMiddleware(cfg *config.Config, limiter *ratelimit.KeyedRateLimiter, logger *slog.Logger) *Middleware {
	proxies, err := config.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Warn("ignoring invalid TRUSTED_PROXIES", "error", err)
		proxies = nil
	}
	return &Middleware{
		jwtSecret:      []byte(cfg.JWTSecret),
		basicPassword:  cfg.BasicAuthPassword,
		trustedProxies: proxies,
		limiter:        limiter,
		logger:         logger,
	}
}

// AdminFromContext returns the identity that passed admin auth.
func AdminFromContext(ctx context.Context) string {
	v, _ := ctx.Value(adminContextKey).(string)
	return v
}

// AuthMiddleware admits a request carrying a valid JWT (auth_token cookie or Bearer header)
// or the admin password via HTTP Basic auth.
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := m.authenticate(r)
		switch {
		case err == nil:
			ctx := context.WithValue(r.Context(), adminContextKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		case errors.Is(err, errNoCredentials):
			w.Header().Set("WWW-Authenticate", `Basic realm="`+basicAuthRealm+`"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, errWrongPassword):
			m.logger.Warn("admin basic auth rejected", "ip", clientIP(r))
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			writeError(w, http.StatusUnauthorized, "invalid token")
		}
	})
}

func (m *Middleware) authenticate(r *http.Request) (string, error) {
	if user, pass, ok := r.BasicAuth(); ok {
		if m.basicPassword == "" {
			return "", errNoCredentials
		}
		if subtle.ConstantTimeCompare([]byte(pass), []byte(m.basicPassword)) != 1 {
			return "", errWrongPassword
		}
		if user == "" {
			user = "admin"
		}
		return user, nil
	}

	if len(m.jwtSecret) == 0 {
		return "", errNoCredentials
	}

	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return m.parseToken(strings.TrimPrefix(h, "Bearer "))
	}

	if cookie, err := r.Cookie(authCookieName); err == nil {
		return m.parseToken(cookie.Value)
	}
	return "", errNoCredentials
}

func (m *Middleware) parseToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

// RealIP applies X-Forwarded-For / X-Real-IP only when the peer is a trusted proxy.
// Requests from anyone else keep their socket address.
func (m *Middleware) RealIP(next http.Handler) http.Handler {
	withForwarded := middleware.RealIP(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.fromTrustedProxy(r) {
			withForwarded.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) fromTrustedProxy(r *http.Request) bool {
	if len(m.trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(clientIP(r))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range m.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RateLimit rejects clients that exceed their per-IP token bucket.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.limiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets conservative browser security headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request.
func (m *Middleware) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		m.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// clientIP returns the host part of RemoteAddr. Forwarded headers only reach
// RemoteAddr through RealIP, for trusted proxies.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
