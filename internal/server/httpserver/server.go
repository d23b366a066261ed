// Package httpserver is the browser-facing request surface: login and signup
// forms, the guarded welcome page and the session lifecycle endpoints.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/throttle"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

// SessionCoordinator is the part of services.SessionService the handlers use.
type SessionCoordinator interface {
	Signup(ctx context.Context, email, password, confirm string) error
	Login(ctx context.Context, email, password string) (string, error)
	ForceLogout(ctx context.Context, email string) error
	Logout(ctx context.Context, token string) error
	Delete(ctx context.Context, token string) error
	ValidateSession(ctx context.Context, token string) (services.SessionState, error)
}

var _ SessionCoordinator = (*services.SessionService)(nil)

// Options configures NewServer. Limiter, Registry and Health are optional.
type Options struct {
	Address string
	Cookie  CookieConfig
	Limiter throttle.Limiter
	// TrustedProxies lists the CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string
	Registry       *prometheus.Registry
	Health         func(ctx context.Context) error
}

type Server struct {
	address  string
	sessions SessionCoordinator
	limiter  throttle.Limiter
	cookie   CookieConfig
	health   func(ctx context.Context) error
	logger   logging.Logger
	echo     *echo.Echo
}

func NewServer(opts Options, l logging.Logger, sessions SessionCoordinator) (*Server, error) {
	renderer, err := newRenderer()
	if err != nil {
		return nil, err
	}

	extractor, err := ipExtractor(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	s := &Server{
		address:  opts.Address,
		sessions: sessions,
		limiter:  opts.Limiter,
		cookie:   opts.Cookie.withDefaults(),
		health:   opts.Health,
		logger:   l.With("module", "http_server"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.IPExtractor = extractor
	e.HTTPErrorHandler = s.errorHandler

	e.Use(Recovery(s.logger))
	e.Use(RequestLogger(s.logger))
	e.Use(SecurityHeaders())

	s.echo = e
	s.routes(opts.Registry)

	return s, nil
}

func (s *Server) routes(reg *prometheus.Registry) {
	e := s.echo

	e.GET("/", s.loginPage)
	e.GET("/page/:page", s.page)
	e.POST("/", s.login, Throttle(s.limiter, s.logger))
	e.POST("/login", s.login, Throttle(s.limiter, s.logger))
	e.POST("/signup", s.signup)
	e.POST("/force-logout", s.forceLogout, Throttle(s.limiter, s.logger))

	guarded := e.Group("", RequireSession(s.sessions, s.cookie, s.logger))
	guarded.GET("/welcome", s.welcome)
	guarded.POST("/logout", s.logout)
	guarded.POST("/delete", s.delete)

	e.GET("/healthz", s.healthz)
	if reg != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
