// Package drawerd wires configuration, storage, the drawer service and its HTTP surface into a process.
package drawerd

import (
	"fmt"
	"strings"
	"time"
)

const (
	StoreDriverGorm = "gorm"
	StoreDriverPgx  = "pgx"

	defaultDatabaseURL    = "sqlite:///tmp/cashdrawer.db"
	defaultListenAddr     = ":8080"
	defaultTimeZone       = "UTC"
	defaultSweepInterval  = 15 * time.Minute
	defaultRequestTimeout = 5 * time.Second
)

// Config aggregates runtime settings for drawerd.
type Config struct {
	DatabaseURL    string
	StoreDriver    string
	ListenAddr     string
	AllowedOrigins []string
	JWTSigningKey  string
	JWTIssuer      string
	TimeZone       string
	SweepInterval  time.Duration
	RequireSession bool
	RequestTimeout time.Duration

	location *time.Location
}

// Validate applies defaults and ensures the configuration contains sane values.
// Set requireAuth for commands that serve HTTP.
func (cfg *Config) Validate(requireAuth bool) error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, StoreDriverGorm))
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.TimeZone = defaultIfEmpty(cfg.TimeZone, defaultTimeZone)
	if cfg.SweepInterval < 0 {
		return fmt.Errorf("sweep interval must not be negative")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	switch cfg.StoreDriver {
	case StoreDriverGorm:
	case StoreDriverPgx:
		if !isPostgresURL(cfg.DatabaseURL) {
			return fmt.Errorf("store driver %q requires a postgres database url", StoreDriverPgx)
		}
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	location, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("time zone %q: %w", cfg.TimeZone, err)
	}
	cfg.location = location
	if requireAuth && len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

// Location returns the business time zone resolved by Validate.
func (cfg Config) Location() *time.Location {
	if cfg.location == nil {
		return time.UTC
	}
	return cfg.location
}

// DefaultSweepInterval is used when no interval is configured.
func DefaultSweepInterval() time.Duration {
	return defaultSweepInterval
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
