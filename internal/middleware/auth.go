// Package middleware holds the HTTP middleware shared by the API router.
package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/models"
)

type contextKey string

// UserContextKey carries the authenticated *models.User.
const UserContextKey contextKey = "user"

// SessionUserKey is the session key holding the logged-in user's ID.
const SessionUserKey = "userID"

// RequireAuth rejects requests without a valid session with 401. The session
// must already be loaded by scs LoadAndSave.
func RequireAuth(sm *scs.SessionManager, db *sql.DB, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := sm.GetInt64(r.Context(), SessionUserKey)
			if userID == 0 {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			user, err := models.GetUserByID(db, userID)
			if err != nil {
				log.Warn("session user lookup failed", "user_id", userID, "error", err)
				_ = sm.Destroy(r.Context())
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns 403 unless the authenticated user is an admin.
// Must run behind RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil || !user.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext retrieves the authenticated user from the request context.
// Returns nil if no user is set (should not happen behind RequireAuth).
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(UserContextKey).(*models.User)
	return u
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
