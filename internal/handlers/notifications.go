package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
	"github.com/carpenike/reformer/internal/models"
)

// Notifications handles in-app notification endpoints.
type Notifications struct {
	DB  *sql.DB
	Log *logger.Logger
}

// List returns a page of notifications and the unread count.
// GET /api/notifications?limit=&offset=
func (h *Notifications) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	limit, err := queryInt(r, "limit", 50, 1, 200)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, 1<<30)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := models.ListNotifications(h.DB, user.ID, limit, offset)
	if err != nil {
		serverError(w, h.Log, "list notifications failed", err, "user_id", user.ID)
		return
	}
	unread, err := models.GetUnreadCount(h.DB, user.ID)
	if err != nil {
		serverError(w, h.Log, "count unread notifications failed", err, "user_id", user.ID)
		return
	}

	out := make([]notificationView, 0, len(list))
	for _, n := range list {
		out = append(out, newNotificationView(n))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": out,
		"unread":        unread,
	})
}

// MarkRead marks one notification read.
// POST /api/notifications/{id}/read
func (h *Notifications) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	err = models.MarkAsRead(h.DB, user.ID, id)
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, "Notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, h.Log, "mark notification read failed", err, "user_id", user.ID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead marks every notification read.
// POST /api/notifications/read-all
func (h *Notifications) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	n, err := models.MarkAllAsRead(h.DB, user.ID)
	if err != nil {
		serverError(w, h.Log, "mark all notifications read failed", err, "user_id", user.ID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

// Preferences returns the user's channel choice for every notification type.
// GET /api/notifications/preferences
func (h *Notifications) Preferences(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"types":       models.AllNotificationTypes,
		"preferences": models.ListNotificationPreferences(h.DB, user.ID),
	})
}

// UpdatePreferences stores channel choices for the listed types.
// PUT /api/notifications/preferences
func (h *Notifications) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var prefs []models.NotificationPreference
	if err := decodeJSON(w, r, &prefs); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, p := range prefs {
		if !knownNotificationType(p.Type) {
			jsonError(w, "Unknown notification type "+strconv.Quote(p.Type), http.StatusUnprocessableEntity)
			return
		}
	}
	for _, p := range prefs {
		if err := models.SetNotificationPreference(h.DB, user.ID, p); err != nil {
			serverError(w, h.Log, "save notification preference failed", err, "user_id", user.ID)
			return
		}
	}
	writeJSON(w, http.StatusOK, models.ListNotificationPreferences(h.DB, user.ID))
}

func knownNotificationType(t string) bool {
	for _, nt := range models.AllNotificationTypes {
		if nt.Type == t {
			return true
		}
	}
	return false
}
