// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds chatops service configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL   string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName  string `envconfig:"SERVICE_NAME" default:"chatops"`
	COMMSToken string `envconfig:"COMMS_TOKEN"`

	// Subjects are <SubjectPrefix>.<namespace>.<list|execute|chat|invoked>
	SubjectPrefix string `envconfig:"CHATOPS_SUBJECT_PREFIX" default:"chatops"`

	// Catalog metadata overrides (empty = take from manifest)
	Namespace     string `envconfig:"CHATOPS_NAMESPACE"`
	Help          string `envconfig:"CHATOPS_HELP"`
	ErrorResponse string `envconfig:"CHATOPS_ERROR_RESPONSE"`
	ManifestFile  string `envconfig:"CHATOPS_MANIFEST_FILE"`

	// Credentials accepted from callers
	AuthToken    string `envconfig:"CHATOPS_AUTH_TOKEN"`
	AltAuthToken string `envconfig:"CHATOPS_ALT_AUTH_TOKEN"`

	// Room sent by the chat CLI command
	RoomID string `envconfig:"CHATOPS_ROOM_ID"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"CHATOPS_REQUEST_TIMEOUT" default:"25s"`
	MatchTimeout   time.Duration `envconfig:"CHATOPS_MATCH_TIMEOUT" default:"1s"`

	// Per-user throttling (0 disables)
	RateLimit float64 `envconfig:"CHATOPS_RATE_LIMIT" default:"0"`
	RateBurst int     `envconfig:"CHATOPS_RATE_BURST" default:"5"`

	// Database (empty disables the audit trail)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP endpoint (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// AcceptedTokens returns the non-empty credentials callers may present, primary first.
func (c *Config) AcceptedTokens() []string {
	var out []string
	for _, t := range []string{c.AuthToken, c.AltAuthToken} {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// AuditEnabled reports whether invocations are recorded in the database.
func (c *Config) AuditEnabled() bool {
	return c.DatabaseURL != ""
}

// ListenAddr returns HTTPAddr, or ":<HTTPPort>" when it is unset.
func (c *Config) ListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// SlogLevel maps LogLevel to a slog.Level; unknown values are info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidateForServe checks required config when running the chatops server.
func (c *Config) ValidateForServe() error {
	if len(c.AcceptedTokens()) == 0 {
		return fmt.Errorf("%s - CHATOPS_AUTH_TOKEN is required for serve", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - CHATOPS_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.MatchTimeout <= 0 {
		return fmt.Errorf("%s - CHATOPS_MATCH_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%s - CHATOPS_RATE_LIMIT must not be negative", logPrefix)
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("%s - CHATOPS_RATE_BURST must be positive when rate limiting", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, history).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
