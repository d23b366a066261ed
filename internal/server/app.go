// Package server wires configuration, storage, the session coordinator and
// the HTTP surface into a runnable application with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpserver"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	tokens   *auth.TokenService
	sessions *services.SessionService
	limiter  throttle.Limiter
	redis    *redis.Client
	registry *prometheus.Registry
}

// NewApp opens storage (running migrations) and builds every service. The
// caller must Run or Close the result.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel).With("profile", c.Profile)
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	repos, err := repomanager.Open(ctx, repomanager.Options{
		Type:           c.DatabaseType,
		DSN:            c.DatabaseDSN,
		ConnectRetries: 5,
		ConnectBackoff: 500 * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, repos: repos, registry: metrics.NewRegistry()}

	if err := app.initServices(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) initServices(ctx context.Context) error {
	c := app.config

	var err error
	app.tokens, err = auth.NewTokenService([]byte(c.SecretKey), c.TokenValidityDuration, app.repos.Accounts())
	if err != nil {
		return fmt.Errorf("token service init error: %w", err)
	}

	app.sessions, err = services.NewSessionService(app.repos, auth.NewArgon2idHasher(auth.DefaultArgon2Params), app.tokens, app.logger)
	if err != nil {
		return fmt.Errorf("session service init error: %w", err)
	}

	policy := throttle.Policy{Attempts: c.LoginAttempts, Window: c.LoginWindow, Lockout: c.LoginLockout}
	if c.RedisURL == "" {
		app.limiter = throttle.NewMemoryLimiter(policy)
		return nil
	}

	app.redis, err = throttle.NewRedisClient(ctx, c.RedisURL)
	if err != nil {
		return fmt.Errorf("redis init error: %w", err)
	}
	app.limiter = throttle.NewRedisLimiter(app.redis, policy)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := httpserver.NewServer(httpserver.Options{
		Address: app.config.EndpointAddrHTTP,
		Cookie: httpserver.CookieConfig{
			Name:   app.config.CookieName,
			Secure: app.config.CookieSecure,
			MaxAge: app.tokens.TTL(),
		},
		Limiter:        app.limiter,
		TrustedProxies: app.config.TrustedProxies,
		Registry:       app.registry,
		Health:         app.repos.Ping,
	}, app.logger, app.sessions)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

// Run serves until ctx is cancelled or the process receives a stop signal,
// then releases storage.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(context.Background(), "shutdown error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}

// Close releases storage and the Redis client.
func (app *App) Close() error {
	var errs []error
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
		app.redis = nil
	}
	if app.repos != nil {
		errs = append(errs, app.repos.Close())
		app.repos = nil
	}
	return errors.Join(errs...)
}
