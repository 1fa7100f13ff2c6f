package auth

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"srdash/webui"
)

const (
	// LoginPath serves the login form.
	LoginPath = "/login"
	// SuccessRedirect is where a successful login lands.
	SuccessRedirect = "/"
)

// LoginHandler serves GET (form) and POST (password check) on /login.
func (m *AuthMiddleware) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if m.authenticated(r) {
				http.Redirect(w, r, SuccessRedirect, http.StatusFound)
				return
			}
			webui.HandleLoginPage(w, r)
		case http.MethodPost:
			m.handleLogin(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (m *AuthMiddleware) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if allowed, remaining := m.limiter.Allow(ip); !allowed {
		m.logger.Warn("login rate limit exceeded",
			zap.String("ip", ip),
			zap.Duration("remaining", remaining))
		w.Header().Set("Retry-After", retryAfter(remaining))
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	password := r.FormValue("password")
	if password == "" {
		m.fail(w, r, "Password is required")
		return
	}
	if err := VerifyPassword(password, m.passwordHash); err != nil {
		m.limiter.RecordAttempt(ip)
		m.logger.Info("login failed",
			zap.String("ip", ip),
			zap.Int("attempts", m.limiter.AttemptCount(ip)))
		m.fail(w, r, "Invalid password")
		return
	}

	session, err := m.sessions.Create()
	if err != nil {
		m.logger.Error("failed to create session", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	m.limiter.Reset(ip)
	http.SetCookie(w, m.cookies.NewSessionCookie(session.ID))

	m.logger.Info("login succeeded",
		zap.String("ip", ip),
		zap.Time("expires_at", session.ExpiresAt))
	http.Redirect(w, r, SuccessRedirect, http.StatusSeeOther)
}

func (m *AuthMiddleware) fail(w http.ResponseWriter, r *http.Request, msg string) {
	if m.loginDelay > 0 {
		time.Sleep(m.loginDelay)
	}
	http.Redirect(w, r, LoginPath+"?error="+url.QueryEscape(msg), http.StatusSeeOther)
}

// LogoutHandler destroys the session and returns to the login page.
func (m *AuthMiddleware) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		if id, err := m.cookies.SessionID(r); err == nil {
			m.sessions.Delete(id)
			m.logger.Info("logout", zap.String("ip", clientIP(r)))
		}
		http.SetCookie(w, m.cookies.ClearCookie())

		code := http.StatusFound
		if r.Method == http.MethodPost {
			code = http.StatusSeeOther
		}
		http.Redirect(w, r, LoginPath, code)
	}
}
