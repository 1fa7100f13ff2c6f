package auth

import (
	"errors"
	"net/http"
	"time"
)

// SessionCookieName names the dashboard session cookie.
const SessionCookieName = "srdash_session"

// ErrNoCookie is returned when the request carries no session cookie.
var ErrNoCookie = errors.New("session cookie not found")

// CookieConfig shapes the session cookie.
type CookieConfig struct {
	Name     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieConfig returns an HttpOnly, SameSite=Strict cookie lasting
// one day. Secure is off so plain-HTTP localhost works.
func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name:     SessionCookieName,
		MaxAge:   24 * time.Hour,
		SameSite: http.SameSiteStrictMode,
	}
}

// NewSessionCookie builds the cookie carrying sessionID.
func (c CookieConfig) NewSessionCookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(c.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

// ClearCookie builds a cookie that deletes the session cookie.
func (c CookieConfig) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}

// SessionID extracts the session id from r.
func (c CookieConfig) SessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", ErrNoCookie
	}
	return cookie.Value, nil
}
