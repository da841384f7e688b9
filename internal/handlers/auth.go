package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
	"github.com/carpenike/reformer/internal/models"
)

// Auth holds dependencies for authentication handlers.
type Auth struct {
	DB       *sql.DB
	Sessions *scs.SessionManager
	Log      *logger.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session reports the current login state and the CSRF token the client must
// echo on state-changing requests.
// GET /api/session
func (a *Auth) Session(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"authenticated": false,
		"csrfToken":     middleware.CSRFTokenFromContext(r.Context()),
	}
	if id := a.Sessions.GetInt64(r.Context(), middleware.SessionUserKey); id != 0 {
		if user, err := models.GetUserByID(a.DB, id); err == nil {
			resp["authenticated"] = true
			resp["user"] = newUserView(user)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Login checks a username and password and starts a session.
// POST /api/login
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		jsonError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := models.Authenticate(a.DB, req.Username, req.Password)
	if err != nil {
		a.Log.Warn("login failed", "username", req.Username, "error", err)
		jsonError(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := a.startSession(r, user.ID)
	if err != nil {
		serverError(w, a.Log, "session renew failed", err)
		return
	}

	a.Log.Info("login", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      newUserView(user),
		"csrfToken": token,
	})
}

// startSession renews the session token to prevent fixation, stores the user
// and issues a fresh CSRF token.
func (a *Auth) startSession(r *http.Request, userID int64) (string, error) {
	if err := a.Sessions.RenewToken(r.Context()); err != nil {
		return "", err
	}
	a.Sessions.Put(r.Context(), middleware.SessionUserKey, userID)
	return middleware.RenewCSRFToken(a.Sessions, r.Context()), nil
}

// Logout destroys the session.
// POST /api/logout
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Destroy(r.Context()); err != nil {
		a.Log.Error("session destroy failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnsureAdmin creates the first admin account when the database has no users.
// It is a no-op when users exist or no credentials are given.
func EnsureAdmin(db *sql.DB, log *logger.Logger, username, password, email string) error {
	n, err := models.CountUsers(db)
	if err != nil {
		return err
	}
	if n > 0 || username == "" || password == "" {
		if n == 0 {
			log.Warn("no users exist and no admin credentials configured; set REFORMER_ADMIN_USER and REFORMER_ADMIN_PASS")
		}
		return nil
	}
	user, err := models.CreateUser(db, username, password, email, true)
	if err != nil {
		return err
	}
	log.Info("bootstrapped admin user", "username", user.Username, "user_id", user.ID)
	return nil
}
