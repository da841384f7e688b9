package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/carpenike/reformer/internal/llm"
	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/models"
	"github.com/carpenike/reformer/internal/scheduler"
)

// ConnectionTester checks a notification channel configuration.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// MaintenanceRunner exposes the background maintenance scheduler.
type MaintenanceRunner interface {
	Status() scheduler.Status
	RunMaintenance() scheduler.Status
}

// Settings handles application settings management (admin-only).
type Settings struct {
	DB          *sql.DB
	Notify      ConnectionTester
	Maintenance MaintenanceRunner
	NewProvider func(*sql.DB) (llm.Provider, error)
	Log         *logger.Logger
}

// List returns the setting definitions and their resolved values. Sensitive
// values are masked.
// GET /api/admin/settings
func (h *Settings) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"registry": models.SettingsRegistry,
		"values":   models.ListSettings(h.DB),
	})
}

// Update stores the submitted key/value pairs. An empty value clears the
// stored row so the env var or default applies. Masked placeholders and
// env-controlled settings are skipped.
// PUT /api/admin/settings
func (h *Settings) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	current := make(map[string]models.SettingValue)
	for _, sv := range models.ListSettings(h.DB) {
		current[sv.Key] = sv
	}
	defs := make(map[string]models.SettingDefinition)
	for _, def := range models.SettingsRegistry {
		defs[def.Key] = def
	}

	for key := range req {
		if _, ok := defs[key]; !ok {
			jsonError(w, "Unknown setting "+key, http.StatusUnprocessableEntity)
			return
		}
		if current[key].ReadOnly {
			jsonError(w, key+" is set by environment variable and cannot be changed here", http.StatusConflict)
			return
		}
	}

	updated := 0
	for key, value := range req {
		def := defs[key]
		value = strings.TrimSpace(value)

		var err error
		switch {
		case def.Sensitive && isMaskedPlaceholder(value):
			continue
		case value == "":
			err = models.DeleteSetting(h.DB, key)
		default:
			err = models.SetSetting(h.DB, key, value)
		}
		if err != nil {
			h.Log.Error("save setting failed", "key", key, "error", err)
			msg := "Failed to save " + def.Label
			if def.Sensitive {
				msg += ". Is " + models.SecretKeyEnv + " set?"
			}
			jsonError(w, msg, http.StatusInternalServerError)
			return
		}
		updated++
	}

	h.Log.Info("settings updated", "count", updated)
	writeJSON(w, http.StatusOK, map[string]any{
		"updated": updated,
		"values":  models.ListSettings(h.DB),
	})
}

// isMaskedPlaceholder reports whether v is a masked value echoed back
// unchanged by the client.
func isMaskedPlaceholder(v string) bool {
	return strings.ContainsRune(v, '•')
}

// TestLLM pings the configured LLM provider.
// POST /api/admin/llm/test
func (h *Settings) TestLLM(w http.ResponseWriter, r *http.Request) {
	newProvider := h.NewProvider
	if newProvider == nil {
		newProvider = llm.NewProviderFromSettings
	}
	provider, err := newProvider(h.DB)
	if err != nil {
		msg := "Not configured. Set an AI provider, model and API key first."
		if !errors.Is(err, llm.ErrNotConfigured) {
			msg = err.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "message": msg})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		h.Log.Warn("LLM connection test failed", "provider", provider.Name(), "error", err)
		msg := err.Error()
		var apiErr *llm.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.UserMessage()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "message": msg})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": "Connected to " + provider.Name() + " successfully.",
	})
}

// TestNotify sends a test message over every configured channel.
// POST /api/admin/notify/test
func (h *Settings) TestNotify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.Notify.TestConnection(ctx); err != nil {
		h.Log.Warn("notification test failed", "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Test notification sent."})
}

// MaintenanceStatus reports the last maintenance run.
// GET /api/admin/maintenance
func (h *Settings) MaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Maintenance.Status())
}

// RunMaintenance runs maintenance now and reports the result.
// POST /api/admin/maintenance/run
func (h *Settings) RunMaintenance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Maintenance.RunMaintenance())
}
