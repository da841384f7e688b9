package models

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// SecretKeyEnv names the variable holding the settings encryption secret.
const SecretKeyEnv = "REFORMER_SECRET_KEY"

// SettingDefinition describes a runtime-configurable setting.
type SettingDefinition struct {
	Key         string   `json:"key"`
	EnvVar      string   `json:"envVar,omitempty"`
	Default     string   `json:"default"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	FieldType   string   `json:"fieldType"` // text, password, select, number, textarea
	Options     []string `json:"options,omitempty"`
	Category    string   `json:"category"`
	Sensitive   bool     `json:"sensitive"`
}

// SettingValue is a resolved setting. Value is empty for sensitive settings
// when served to clients; Masked is always safe to display.
type SettingValue struct {
	Key      string `json:"key"`
	Value    string `json:"value,omitempty"`
	Source   string `json:"source"` // env, db, default
	Masked   string `json:"masked"`
	ReadOnly bool   `json:"readOnly"`
	Category string `json:"category"`
}

// SettingsRegistry lists every known setting in display order.
var SettingsRegistry = []SettingDefinition{
	{
		Key: "app.name", EnvVar: "REFORMER_APP_NAME", Default: "Reformer",
		Label: "Application Name", Description: "Name used in notifications",
		FieldType: "text", Category: "General",
	},
	{
		Key: "app.base_url", EnvVar: "REFORMER_BASE_URL", Default: "",
		Label: "Base URL", Description: "Public URL of the app, used for links in emails",
		FieldType: "text", Category: "General",
	},
	{
		Key: "llm.provider", EnvVar: "REFORMER_LLM_PROVIDER", Default: "",
		Label: "Provider", Description: "AI provider for chat and plan generation",
		FieldType: "select", Options: []string{"", "openai", "anthropic", "ollama"},
		Category: "AI Trainer",
	},
	{
		Key: "llm.model", EnvVar: "REFORMER_LLM_MODEL", Default: "",
		Label: "Model", Description: "Model name (e.g. gpt-4o, claude-sonnet-4-20250514, llama3)",
		FieldType: "text", Category: "AI Trainer",
	},
	{
		Key: "llm.api_key", EnvVar: "REFORMER_LLM_API_KEY", Default: "",
		Label: "API Key", Description: "Provider API key (not needed for Ollama)",
		FieldType: "password", Category: "AI Trainer", Sensitive: true,
	},
	{
		Key: "llm.base_url", EnvVar: "REFORMER_LLM_BASE_URL", Default: "",
		Label: "Base URL", Description: "Custom API endpoint (required for Ollama)",
		FieldType: "text", Category: "AI Trainer",
	},
	{
		Key: "llm.temperature", EnvVar: "REFORMER_LLM_TEMPERATURE", Default: "0.7",
		Label: "Temperature", Description: "0.0 is deterministic, 2.0 is very creative",
		FieldType: "number", Category: "AI Trainer",
	},
	{
		Key: "llm.max_tokens", EnvVar: "REFORMER_LLM_MAX_TOKENS", Default: "4096",
		Label: "Max Tokens", Description: "Maximum output tokens per request (256-65536)",
		FieldType: "number", Category: "AI Trainer",
	},
	{
		Key: "smtp.host", EnvVar: "REFORMER_SMTP_HOST", Default: "",
		Label: "SMTP Host", Description: "SMTP server hostname",
		FieldType: "text", Category: "Notifications",
	},
	{
		Key: "smtp.port", EnvVar: "REFORMER_SMTP_PORT", Default: "587",
		Label: "SMTP Port", Description: "587 for STARTTLS, 465 for SSL",
		FieldType: "number", Category: "Notifications",
	},
	{
		Key: "smtp.username", EnvVar: "REFORMER_SMTP_USERNAME", Default: "",
		Label: "SMTP Username", FieldType: "text", Category: "Notifications",
	},
	{
		Key: "smtp.password", EnvVar: "REFORMER_SMTP_PASSWORD", Default: "",
		Label: "SMTP Password", FieldType: "password", Category: "Notifications", Sensitive: true,
	},
	{
		Key: "smtp.from", EnvVar: "REFORMER_SMTP_FROM", Default: "",
		Label: "From Address", Description: "Sender email address",
		FieldType: "text", Category: "Notifications",
	},
	{
		Key: "notify.urls", EnvVar: "REFORMER_NOTIFY_URLS", Default: "",
		Label: "Broadcast URLs", Description: "Shoutrrr URLs (ntfy, Discord, ...), one per line",
		FieldType: "textarea", Category: "Notifications", Sensitive: true,
	},
	{
		Key: "maintenance.interval_hours", Default: "24",
		Label: "Schedule Interval (hours)", Description: "How often maintenance runs (1-168)",
		FieldType: "number", Category: "Maintenance",
	},
	{
		Key: "maintenance.retention_days", Default: "90",
		Label: "Notification Retention (days)", Description: "Read notifications older than this are pruned (1-365)",
		FieldType: "number", Category: "Maintenance",
	},
	{
		Key: "chat.retention_days", Default: "0",
		Label: "Chat Retention (days)", Description: "Chat messages older than this are pruned (0 keeps them forever)",
		FieldType: "number", Category: "Maintenance",
	},
}

// ErrUnknownSetting is returned for keys missing from SettingsRegistry.
var ErrUnknownSetting = errors.New("unknown setting")

const encPrefix = "enc:"

// GetSetting resolves a setting: environment variable, then app_settings row,
// then the built-in default. Unknown keys resolve to "".
func GetSetting(db *sql.DB, key string) string {
	def := findDefinition(key)
	if def == nil {
		return ""
	}
	return resolveSetting(db, def).Value
}

// SetSetting stores a value. Sensitive values are encrypted at rest.
func SetSetting(db *sql.DB, key, value string) error {
	def := findDefinition(key)
	if def == nil {
		return fmt.Errorf("models: set setting %q: %w", key, ErrUnknownSetting)
	}

	stored := value
	if def.Sensitive && value != "" {
		enc, err := encryptValue(value)
		if err != nil {
			return fmt.Errorf("models: encrypt setting %q: %w", key, err)
		}
		stored = encPrefix + enc
	}

	if _, err := db.Exec(`
		INSERT INTO app_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, stored); err != nil {
		return fmt.Errorf("models: set setting %q: %w", key, err)
	}
	return nil
}

// DeleteSetting removes the stored value so the env var or default applies.
func DeleteSetting(db *sql.DB, key string) error {
	if _, err := db.Exec(`DELETE FROM app_settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("models: delete setting %q: %w", key, err)
	}
	return nil
}

// ListSettings resolves every registered setting. Sensitive values are
// returned masked only.
func ListSettings(db *sql.DB) []SettingValue {
	out := make([]SettingValue, 0, len(SettingsRegistry))
	for i := range SettingsRegistry {
		sv := resolveSetting(db, &SettingsRegistry[i])
		if SettingsRegistry[i].Sensitive {
			sv.Value = ""
		}
		out = append(out, sv)
	}
	return out
}

// IsAIConfigured reports whether an LLM provider is selected.
func IsAIConfigured(db *sql.DB) bool {
	return GetSetting(db, "llm.provider") != ""
}

// GetAppName returns the configured application name.
func GetAppName(db *sql.DB) string {
	if v := GetSetting(db, "app.name"); v != "" {
		return v
	}
	return "Reformer"
}

// GetMaintenanceIntervalHours returns the scheduler interval, 1-168, default 24.
func GetMaintenanceIntervalHours(db *sql.DB) int {
	return settingInt(db, "maintenance.interval_hours", 1, 168, 24)
}

// GetMaintenanceRetentionDays returns the notification retention, 1-365, default 90.
func GetMaintenanceRetentionDays(db *sql.DB) int {
	return settingInt(db, "maintenance.retention_days", 1, 365, 90)
}

// GetChatRetentionDays returns the chat retention, 0-3650, default 0 (keep).
func GetChatRetentionDays(db *sql.DB) int {
	return settingInt(db, "chat.retention_days", 0, 3650, 0)
}

func settingInt(db *sql.DB, key string, lo, hi, def int) int {
	if n, err := strconv.Atoi(GetSetting(db, key)); err == nil && n >= lo && n <= hi {
		return n
	}
	return def
}

func findDefinition(key string) *SettingDefinition {
	for i := range SettingsRegistry {
		if SettingsRegistry[i].Key == key {
			return &SettingsRegistry[i]
		}
	}
	return nil
}

func resolveSetting(db *sql.DB, def *SettingDefinition) SettingValue {
	sv := SettingValue{Key: def.Key, Category: def.Category}

	if def.EnvVar != "" {
		if v := os.Getenv(def.EnvVar); v != "" {
			sv.Value, sv.Source, sv.ReadOnly = v, "env", true
			sv.Masked = maskValue(v, def.Sensitive)
			return sv
		}
	}

	var raw string
	if err := db.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, def.Key).Scan(&raw); err == nil {
		sv.Source = "db"
		if strings.HasPrefix(raw, encPrefix) {
			plain, err := decryptValue(strings.TrimPrefix(raw, encPrefix))
			if err != nil {
				sv.Masked = "(decryption failed)"
				return sv
			}
			raw = plain
		}
		sv.Value = raw
		sv.Masked = maskValue(raw, def.Sensitive)
		return sv
	}

	sv.Value, sv.Source = def.Default, "default"
	sv.Masked = maskValue(def.Default, def.Sensitive)
	return sv
}

func maskValue(value string, sensitive bool) string {
	if !sensitive || value == "" {
		return value
	}
	if len(value) <= 8 {
		return "••••••••"
	}
	return value[:4] + "••••" + value[len(value)-4:]
}

var (
	secretMu  sync.RWMutex
	secretRaw string
)

// GetOrCreateSecretKey loads the settings encryption secret: the
// REFORMER_SECRET_KEY env var, else the stored key, else a freshly generated
// one that is persisted. source is "env", "database" or "generated".
func GetOrCreateSecretKey(db *sql.DB) (source string, err error) {
	const row = `_internal.secret_key`
	persist := func(key string) error {
		_, err := db.Exec(`
			INSERT INTO app_settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, row, key)
		return err
	}

	if key := os.Getenv(SecretKeyEnv); key != "" {
		if err := persist(key); err != nil {
			return "", fmt.Errorf("models: store secret key: %w", err)
		}
		setSecret(key)
		return "env", nil
	}

	var key string
	if err := db.QueryRow(`SELECT value FROM app_settings WHERE key = ?`, row).Scan(&key); err == nil && key != "" {
		setSecret(key)
		return "database", nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("models: generate secret key: %w", err)
	}
	key = base64.StdEncoding.EncodeToString(buf)
	if err := persist(key); err != nil {
		return "", fmt.Errorf("models: store secret key: %w", err)
	}
	setSecret(key)
	return "generated", nil
}

func setSecret(key string) {
	secretMu.Lock()
	secretRaw = key
	secretMu.Unlock()
}

// secretKey derives the AES-256 key from the loaded secret with HKDF.
func secretKey() ([]byte, error) {
	secretMu.RLock()
	raw := secretRaw
	secretMu.RUnlock()
	if raw == "" {
		raw = os.Getenv(SecretKeyEnv)
	}
	if raw == "" {
		return nil, errors.New("settings secret key not loaded")
	}
	h := hkdf.New(sha256.New, []byte(raw), []byte("reformer-settings-v1"), []byte("aes-256-gcm"))
	derived := make([]byte, 32)
	if _, err := io.ReadFull(h, derived); err != nil {
		return nil, err
	}
	return derived, nil
}

func newGCM() (cipher.AEAD, error) {
	key, err := secretKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func encryptValue(plaintext string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func decryptValue(encoded string) (string, error) {
	gcm, err := newGCM()
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
