package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/carpenike/reformer/internal/database"
	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/models"
)

// Health reports liveness and database readiness.
type Health struct {
	DB      *sql.DB
	Version string
	Log     *logger.Logger
}

// ServeHTTP handles GET /health.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.PingContext(ctx); err != nil {
		h.Log.Error("health check: database ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	version, err := database.MigrationVersion(h.DB)
	if err != nil {
		h.Log.Error("health check: migration version failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       h.Version,
		"schemaVersion": version,
		"aiConfigured":  models.IsAIConfigured(h.DB),
	})
}
