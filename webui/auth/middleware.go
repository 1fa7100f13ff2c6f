// Package auth protects the dashboard with a single bcrypt-hashed
// password, in-memory sessions and a per-address login rate limit.
package auth

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"srdash/webui"
)

const (
	DefaultRateLimitAttempts = 5
	DefaultRateLimitWindow   = time.Minute
	DefaultRateLimitBlock    = 5 * time.Minute
	DefaultSessionTTL        = 24 * time.Hour
)

// Config tunes the middleware.
type Config struct {
	SessionTTL        time.Duration
	RateLimitAttempts int
	RateLimitWindow   time.Duration
	RateLimitBlock    time.Duration
	SecureCookies     bool

	// FailedLoginDelay slows down password guessing (default: 1s).
	FailedLoginDelay time.Duration

	// BcryptCost defaults to DefaultCost.
	BcryptCost int
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		SessionTTL:        DefaultSessionTTL,
		RateLimitAttempts: DefaultRateLimitAttempts,
		RateLimitWindow:   DefaultRateLimitWindow,
		RateLimitBlock:    DefaultRateLimitBlock,
		FailedLoginDelay:  time.Second,
		BcryptCost:        DefaultCost,
	}
}

// AuthMiddleware implements webui.AuthProvider.
type AuthMiddleware struct {
	passwordHash string
	sessions     *webui.SessionStore
	limiter      *webui.RateLimiter
	cookies      CookieConfig
	loginDelay   time.Duration
	logger       *zap.Logger
}

// NewAuthMiddleware hashes password and sets up sessions and rate limiting.
func NewAuthMiddleware(password string, cfg Config, logger *zap.Logger) (*AuthMiddleware, error) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultCost
	}
	if cfg.RateLimitAttempts <= 0 {
		cfg.RateLimitAttempts = DefaultRateLimitAttempts
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = DefaultRateLimitWindow
	}
	if cfg.RateLimitBlock <= 0 {
		cfg.RateLimitBlock = DefaultRateLimitBlock
	}

	hash, err := HashPasswordWithCost(password, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cookies := DefaultCookieConfig()
	cookies.Secure = cfg.SecureCookies
	if cfg.SessionTTL > 0 {
		cookies.MaxAge = cfg.SessionTTL
	}

	return &AuthMiddleware{
		passwordHash: hash,
		sessions:     webui.NewSessionStore(cfg.SessionTTL),
		limiter:      webui.NewRateLimiter(cfg.RateLimitAttempts, cfg.RateLimitWindow, cfg.RateLimitBlock),
		cookies:      cookies,
		loginDelay:   cfg.FailedLoginDelay,
		logger:       logger.Named("auth"),
	}, nil
}

// StartCleanup expires stale sessions and rate-limit records every
// interval until ctx is cancelled.
func (m *AuthMiddleware) StartCleanup(ctx context.Context, interval time.Duration) {
	m.sessions.StartCleanupTicker(ctx, interval)
	m.limiter.StartCleanupTicker(ctx, interval)
}

// authenticated reports whether r carries a live session.
func (m *AuthMiddleware) authenticated(r *http.Request) bool {
	id, err := m.cookies.SessionID(r)
	if err != nil {
		return false
	}
	_, err = m.sessions.Get(id)
	return err == nil
}

// Middleware answers 401 for requests without a live session.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.authenticated(r) {
			m.logger.Debug("unauthenticated request",
				zap.String("path", r.URL.Path),
				zap.String("ip", clientIP(r)))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RedirectMiddleware sends requests without a live session to /login.
func (m *AuthMiddleware) RedirectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.authenticated(r) {
			http.Redirect(w, r, LoginPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionCount returns the number of stored sessions.
func (m *AuthMiddleware) SessionCount() int {
	return m.sessions.Count()
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfter(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
