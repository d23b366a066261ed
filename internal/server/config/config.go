// Package config handles configuration for the server and the admin CLI:
// profile defaults, a JSON overlay, environment variables (optionally read
// from a .env file) and command-line flags, applied in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

const (
	ProfileDevelopment = "development"
	ProfileTesting     = "testing"
	ProfileProduction  = "production"
)

// MinProductionSecretLen is the shortest HS256 secret production accepts.
const MinProductionSecretLen = 32

// Config holds runtime settings for the AuthKeeper server.
//
// Fields:
//   - EndpointAddrHTTP: bind address of the web surface.
//   - DatabaseType / DatabaseDSN: backend (memory, bolt, sqlite, postgres, mysql) and its DSN or path.
//   - SecretKey: HMAC secret for signing session tokens (HS256).
//   - TokenValidityDuration: session token lifetime.
//   - CookieName / CookieSecure: session cookie settings.
//   - RedisURL: when set, login throttling counters live in Redis.
//   - LoginAttempts / LoginWindow / LoginLockout: login throttling policy.
//   - TrustedProxies: CIDRs of reverse proxies whose X-Forwarded-For is believed.
type Config struct {
	Profile               string
	EndpointAddrHTTP      string
	DatabaseType          string
	DatabaseDSN           string
	SecretKey             string
	TokenValidityDuration time.Duration
	CookieName            string
	CookieSecure          bool
	RedisURL              string
	LoginAttempts         int
	LoginWindow           time.Duration
	LoginLockout          time.Duration
	TrustedProxies        []string
	LogLevel              string
	LogFormat             string
}

// LoadDefaults populates Config with values shared by every profile.
func (c *Config) LoadDefaults() {
	c.Profile = ProfileDevelopment
	c.EndpointAddrHTTP = ":8080"
	c.TokenValidityDuration = 10 * time.Minute
	c.CookieName = "authkeeper_session"
	c.LoginAttempts = 5
	c.LoginWindow = time.Minute
	c.LoginLockout = 5 * time.Minute
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// ApplyProfile overlays the defaults of the named profile.
// NOTE: development and testing use a well-known secret.
func (c *Config) ApplyProfile(name string) error {
	switch name {
	case ProfileDevelopment:
		c.DatabaseType = "sqlite"
		c.DatabaseDSN = "/tmp/auth_system.db"
		c.SecretKey = "s3cr3t"
		c.LogLevel = "debug"
		c.LogFormat = "text"
	case ProfileTesting:
		c.DatabaseType = "memory"
		c.DatabaseDSN = ""
		c.SecretKey = "s3cr3t"
	case ProfileProduction:
		c.DatabaseType = ""
		c.DatabaseDSN = ""
		c.SecretKey = ""
		c.CookieSecure = true
	default:
		return fmt.Errorf("unknown profile %q", name)
	}
	c.Profile = name
	return nil
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseType == "" {
		errs = append(errs, errors.New("database type is not set"))
	}
	if c.DatabaseDSN == "" && c.DatabaseType != "" && c.DatabaseType != "memory" {
		errs = append(errs, fmt.Errorf("database URL is required for %s", c.DatabaseType))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("JWT secret is not set"))
	} else if c.Profile == ProfileProduction && len(c.SecretKey) < MinProductionSecretLen {
		errs = append(errs, fmt.Errorf("JWT secret must be at least %d bytes in production", MinProductionSecretLen))
	}
	if c.TokenValidityDuration <= 0 {
		errs = append(errs, errors.New("token validity must be positive"))
	}
	if c.EndpointAddrHTTP == "" {
		errs = append(errs, errors.New("HTTP address is not set"))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Errorf("trusted proxy: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Load builds a Config from args (without the program name) and the process
// environment.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	profile := flagx.ProfileFlag(args)
	if profile == "" {
		profile = os.Getenv(envProfile)
	}
	if profile == "" {
		profile = ProfileDevelopment
	}
	if err := cfg.ApplyProfile(strings.ToLower(profile)); err != nil {
		return nil, err
	}

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s configuration: %w", cfg.Profile, err)
	}
	return cfg, nil
}

// LoadConfig is Load over os.Args. It panics on error.
func LoadConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}
