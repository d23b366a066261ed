package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const DefaultCookieName = "authkeeper_session"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	// MaxAge should match the token lifetime.
	MaxAge time.Duration
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Name == "" {
		c.Name = DefaultCookieName
	}
	return c
}

func (s *Server) setSessionCookie(c echo.Context, token string) {
	ck := &http.Cookie{
		Name:     s.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cookie.MaxAge > 0 {
		ck.MaxAge = int(s.cookie.MaxAge / time.Second)
	}
	c.SetCookie(ck)
}

func clearSessionCookie(c echo.Context, cfg CookieConfig) {
	c.SetCookie(&http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func sessionToken(c echo.Context, cfg CookieConfig) string {
	ck, err := c.Cookie(cfg.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}
