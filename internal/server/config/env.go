package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envProfile      = "AUTH_PROFILE"
	envDatabaseType = "DATABASE_TYPE"
	envDatabaseURL  = "DATABASE_URL"
	envJWTSecret    = "JWT_SECRET"
	envHTTPAddr     = "HTTP_ADDR"
	envRedisURL     = "REDIS_URL"
	envTokenTTL     = "TOKEN_TTL"
	envCookieSecure = "COOKIE_SECURE"
	envLogLevel     = "LOG_LEVEL"
	// comma-separated CIDRs
	envTrustedProxies = "TRUSTED_PROXIES"
)

// dotEnvFile is read, if present, before the environment is consulted.
// Variables already set in the process win over the file.
var dotEnvFile = ".env"

func loadDotEnv() error {
	err := godotenv.Load(dotEnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", dotEnvFile, err)
	}
	return nil
}

func parseEnv(config *Config) error {
	lookup := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	lookup(envDatabaseType, &config.DatabaseType)
	lookup(envDatabaseURL, &config.DatabaseDSN)
	lookup(envJWTSecret, &config.SecretKey)
	lookup(envHTTPAddr, &config.EndpointAddrHTTP)
	lookup(envRedisURL, &config.RedisURL)
	lookup(envLogLevel, &config.LogLevel)

	if v, ok := os.LookupEnv(envTokenTTL); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envTokenTTL, err)
		}
		config.TokenValidityDuration = d
	}

	if v, ok := os.LookupEnv(envTrustedProxies); ok && v != "" {
		config.TrustedProxies = splitList(v)
	}

	if v, ok := os.LookupEnv(envCookieSecure); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envCookieSecure, err)
		}
		config.CookieSecure = b
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
