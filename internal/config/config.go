// Package config resolves process-level configuration: an optional .env file,
// an optional YAML file, then REFORMER_* environment variables, in increasing
// order of precedence. Runtime-editable settings (LLM provider, notification
// channels) live in the app_settings table instead; see models.GetSetting.
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
	"gopkg.in/yaml.v3"
)

// Config holds every setting needed before the database is opened.
type Config struct {
	// Addr is the HTTP listen address (default ":8080").
	Addr string `yaml:"addr"`

	// DBPath is the SQLite database file (default "reformer.db").
	DBPath string `yaml:"db_path"`

	// LogMode selects the zap preset: "dev" or "prod" (default "dev").
	LogMode string `yaml:"log_mode"`

	// SecureCookies marks session cookies Secure. Enable behind TLS.
	SecureCookies bool `yaml:"secure_cookies"`

	// SessionLifetime is how long a login session stays valid (default 30 days).
	SessionLifetime time.Duration `yaml:"session_lifetime"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	// Empty disables CORS headers entirely.
	CORSOrigins []string `yaml:"cors_origins"`

	// TrustedProxies are CIDRs whose X-Forwarded-For header is honored by
	// the rate limiter.
	TrustedProxies []string `yaml:"trusted_proxies"`

	// Timezone is the IANA zone used for calendar-day arithmetic such as
	// streaks and ISO week buckets (default "UTC").
	Timezone string `yaml:"timezone"`

	// ContextWindowDays is the default look-back window for the AI context
	// (default 30).
	ContextWindowDays int `yaml:"context_window_days"`

	// ChatHistoryLimit caps how many prior messages are replayed to the model
	// (default 50). Zero also means the default; history is always bounded.
	ChatHistoryLimit int `yaml:"chat_history_limit"`

	Admin   AdminConfig   `yaml:"admin"`
	RP      RPConfig      `yaml:"rp"`
	Tracing TracingConfig `yaml:"tracing"`
}

// AdminConfig bootstraps the first account on an empty database.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Email    string `yaml:"email"`
}

// RPConfig is the WebAuthn relying party. Passkeys are disabled when ID is empty.
type RPConfig struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Origins     []string `yaml:"origins"`
}

// TracingConfig names this service in exported spans. Whether tracing is
// enabled at all is controlled by OTEL_ENABLED.
type TracingConfig struct {
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		DBPath:            "reformer.db",
		LogMode:           "dev",
		SessionLifetime:   30 * 24 * time.Hour,
		Timezone:          "UTC",
		ContextWindowDays: 30,
		ChatHistoryLimit:  50,
		RP:                RPConfig{DisplayName: "Reformer"},
		Tracing:           TracingConfig{ServiceName: "reformer"},
	}
}

// Load resolves configuration. path may be empty, in which case REFORMER_CONFIG
// is consulted; a missing .env file is not an error. The returned warnings are
// meant to be logged once the logger exists.
func Load(path string) (Config, []string, error) {
	var warnings []string
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		warnings = append(warnings, fmt.Sprintf("load .env: %v", err))
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("REFORMER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, warnings, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, warnings, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	w, err := applyEnv(&cfg)
	warnings = append(warnings, w...)
	if err != nil {
		return Config{}, warnings, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, warnings, err
	}
	return cfg, warnings, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path must not be empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if c.ContextWindowDays < 1 {
		return fmt.Errorf("config: context_window_days must be at least 1, got %d", c.ContextWindowDays)
	}
	if c.ChatHistoryLimit < 0 {
		return fmt.Errorf("config: chat_history_limit must not be negative, got %d", c.ChatHistoryLimit)
	}
	if c.RP.ID != "" && len(c.RP.Origins) == 0 {
		return fmt.Errorf("config: rp.origins required when rp.id is set")
	}
	return nil
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyEnv(c *Config) ([]string, error) {
	var warnings []string

	setString := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	setList := func(env string, dst *[]string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = splitList(v)
		}
	}
	setInt := func(env string, dst *int) error {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", env, v, err)
		}
		*dst = n
		return nil
	}

	setString("REFORMER_ADDR", &c.Addr)
	setString("REFORMER_DB_PATH", &c.DBPath)
	setString("REFORMER_LOG_MODE", &c.LogMode)
	setString("REFORMER_TIMEZONE", &c.Timezone)
	setString("REFORMER_ADMIN_USER", &c.Admin.Username)
	setString("REFORMER_ADMIN_PASS", &c.Admin.Password)
	setString("REFORMER_ADMIN_EMAIL", &c.Admin.Email)
	setString("REFORMER_RP_ID", &c.RP.ID)
	setString("REFORMER_RP_DISPLAY_NAME", &c.RP.DisplayName)
	setString("OTEL_SERVICE_NAME", &c.Tracing.ServiceName)
	setString("REFORMER_ENVIRONMENT", &c.Tracing.Environment)
	setList("REFORMER_RP_ORIGINS", &c.RP.Origins)
	setList("REFORMER_CORS_ORIGINS", &c.CORSOrigins)
	setList("REFORMER_TRUSTED_PROXIES", &c.TrustedProxies)

	if v := os.Getenv("REFORMER_SECURE_COOKIES"); v != "" {
		c.SecureCookies = v == "true" || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("REFORMER_SESSION_LIFETIME")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("ignoring REFORMER_SESSION_LIFETIME=%q: %v", v, err))
		} else {
			c.SessionLifetime = d
		}
	}
	if err := setInt("REFORMER_CONTEXT_WINDOW_DAYS", &c.ContextWindowDays); err != nil {
		return warnings, err
	}
	if err := setInt("REFORMER_CHAT_HISTORY_LIMIT", &c.ChatHistoryLimit); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// splitList splits a comma-or-newline separated list and drops blanks.
func splitList(s string) []string {
	s = strings.ReplaceAll(s, "\n", ",")
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
