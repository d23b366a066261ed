package httpserver

import (
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/throttle"
	"github.com/labstack/echo/v4"
)

const (
	contextKeyEmail = "session_email"
	contextKeyToken = "session_token"
)

// RequireSession lets the request through only with a live session cookie.
// Otherwise the cookie is cleared and the client is sent to the login page.
func RequireSession(sessions SessionCoordinator, cookie CookieConfig, l logging.Logger) echo.MiddlewareFunc {
	cookie = cookie.withDefaults()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			token := sessionToken(c, cookie)
			if token == "" {
				return c.Redirect(http.StatusSeeOther, "/")
			}

			st, err := sessions.ValidateSession(ctx, token)
			if err != nil {
				return err
			}
			if !st.LoggedIn {
				l.Debug(ctx, "session rejected", "path", c.Request().URL.Path, "expired", st.Expired)
				clearSessionCookie(c, cookie)
				if st.Expired {
					return c.Redirect(http.StatusSeeOther, "/?status=expired")
				}
				return c.Redirect(http.StatusSeeOther, "/")
			}

			c.Set(contextKeyEmail, st.Email)
			c.Set(contextKeyToken, token)
			return next(c)
		}
	}
}

func sessionEmail(c echo.Context) string {
	v, _ := c.Get(contextKeyEmail).(string)
	return v
}

func currentToken(c echo.Context) string {
	v, _ := c.Get(contextKeyToken).(string)
	return v
}

// Throttle rejects requests from client IPs that are locked out. A nil
// limiter disables it; limiter errors let the request through.
func Throttle(limiter throttle.Limiter, l logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}
			ctx := c.Request().Context()

			wait, err := limiter.Allow(ctx, c.RealIP())
			if err != nil {
				l.Warn(ctx, "throttle check failed", "error", err)
				return next(c)
			}
			if wait <= 0 {
				return next(c)
			}

			metrics.RecordLogin(metrics.OutcomeThrottled)
			l.Warn(ctx, "login throttled", "remote_ip", c.RealIP(), "retry_after", wait)
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many failed attempts, please try again later.").
				SetInternal(common.ErrTooManyAttempts)
		}
	}
}

// RequestLogger logs every request at a level chosen by the response status.
func RequestLogger(l logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is known
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			args := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency", time.Since(start),
				"remote_ip", c.RealIP(),
			}

			switch {
			case res.Status >= 500:
				l.Error(req.Context(), "request", args...)
			case res.Status >= 400:
				l.Warn(req.Context(), "request", args...)
			default:
				l.Info(req.Context(), "request", args...)
			}

			return nil
		}
	}
}

// Recovery turns a panic into a 500 and logs the stack.
func Recovery(l logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				if r := recover(); r != nil {
					l.Error(c.Request().Context(), "panic recovered",
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
						"method", c.Request().Method,
						"path", c.Request().URL.Path,
					)
					returnErr = echo.NewHTTPError(http.StatusInternalServerError)
				}
			}()

			return next(c)
		}
	}
}

// SecurityHeaders sets browser hardening headers on every response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; form-action 'self'; base-uri 'self'")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}
