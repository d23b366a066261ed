package httpserver

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/labstack/echo/v4"
)

const (
	msgBadCredentials  = "E-mail and Password are wrong, please try again."
	msgAlreadyLoggedIn = "This account is already logged in somewhere else."
)

func (s *Server) loginPage(c echo.Context) error {
	return c.Render(http.StatusOK, "login", pageData{Success: statusMessages[c.QueryParam("status")]})
}

func (s *Server) page(c echo.Context) error {
	switch name := c.Param("page"); name {
	case "login", "signup":
		return c.Render(http.StatusOK, name, pageData{})
	default:
		return echo.ErrNotFound
	}
}

func (s *Server) login(c echo.Context) error {
	ctx := c.Request().Context()
	email := c.FormValue("email")
	password := c.FormValue("password")

	token, err := s.sessions.Login(ctx, email, password)

	var ve *common.ValidationError
	switch {
	case err == nil:
		s.resetThrottle(c)
		s.setSessionCookie(c, token)
		return c.Redirect(http.StatusSeeOther, "/welcome")
	case errors.As(err, &ve):
		return c.Render(http.StatusBadRequest, "login", pageData{Email: email, Error: firstMessage(ve)})
	case errors.Is(err, common.ErrorUnauthorized):
		s.failThrottle(c)
		return c.Render(http.StatusUnauthorized, "login", pageData{Email: email, Error: msgBadCredentials})
	case errors.Is(err, common.ErrAlreadyLoggedIn):
		return c.Render(http.StatusConflict, "login", pageData{
			Email:           common.NormalizeEmail(email),
			Error:           msgAlreadyLoggedIn,
			AlreadyLoggedIn: true,
		})
	default:
		return err
	}
}

func (s *Server) signup(c echo.Context) error {
	if c.FormValue("act") == "cancel" {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	ctx := c.Request().Context()
	email := c.FormValue("email")

	err := s.sessions.Signup(ctx, email, c.FormValue("password"), c.FormValue("confirm-password"))

	var ve *common.ValidationError
	switch {
	case err == nil:
		return c.Redirect(http.StatusSeeOther, "/?status=created")
	case errors.As(err, &ve):
		return c.Render(http.StatusBadRequest, "signup", pageData{Email: email, Errors: ve.Messages()})
	default:
		return err
	}
}

func (s *Server) forceLogout(c echo.Context) error {
	ctx := c.Request().Context()

	err := s.sessions.ForceLogout(ctx, c.FormValue("email"))

	var ve *common.ValidationError
	switch {
	case err == nil:
		return c.Redirect(http.StatusSeeOther, "/?status=forced-out")
	case errors.As(err, &ve):
		return c.Render(http.StatusBadRequest, "login", pageData{Error: firstMessage(ve)})
	default:
		return err
	}
}

func (s *Server) welcome(c echo.Context) error {
	return c.Render(http.StatusOK, "welcome", pageData{Email: sessionEmail(c)})
}

func (s *Server) logout(c echo.Context) error {
	ctx := c.Request().Context()

	err := s.sessions.Logout(ctx, currentToken(c))
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	clearSessionCookie(c, s.cookie)
	return c.Redirect(http.StatusSeeOther, "/?status=logged-out")
}

func (s *Server) delete(c echo.Context) error {
	ctx := c.Request().Context()

	err := s.sessions.Delete(ctx, currentToken(c))
	switch {
	case err == nil:
		clearSessionCookie(c, s.cookie)
		return c.Redirect(http.StatusSeeOther, "/?status=deleted")
	case errors.Is(err, common.ErrorNotFound):
		clearSessionCookie(c, s.cookie)
		return c.Redirect(http.StatusSeeOther, "/")
	default:
		return err
	}
}

func (s *Server) healthz(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			s.logger.Warn(c.Request().Context(), "health check failed", "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) failThrottle(c echo.Context) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Fail(c.Request().Context(), c.RealIP()); err != nil {
		s.logger.Warn(c.Request().Context(), "throttle update failed", "error", err)
	}
}

func (s *Server) resetThrottle(c echo.Context) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Reset(c.Request().Context(), c.RealIP()); err != nil {
		s.logger.Warn(c.Request().Context(), "throttle reset failed", "error", err)
	}
}

func firstMessage(ve *common.ValidationError) string {
	if msgs := ve.Messages(); len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// errorHandler renders every unhandled error as the error page.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	} else {
		s.logger.Error(c.Request().Context(), "unhandled error",
			"error", err, "method", c.Request().Method, "path", c.Request().URL.Path)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.Render(code, "error", pageData{Code: code, Error: message})
	}
	if err != nil {
		s.logger.Error(c.Request().Context(), "error page failed", "error", err)
	}
}
