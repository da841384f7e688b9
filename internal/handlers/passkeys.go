package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
	"github.com/carpenike/reformer/internal/models"
)

const (
	sessionRegistration = "webauthn_registration"
	sessionLogin        = "webauthn_login"
	sessionLabel        = "webauthn_label"
)

// Passkeys holds dependencies for WebAuthn/passkey handlers. A nil WebAuthn
// disables every endpoint with 404.
type Passkeys struct {
	DB       *sql.DB
	Sessions *scs.SessionManager
	WebAuthn *webauthn.WebAuthn
	Auth     *Auth
	Log      *logger.Logger
}

func (h *Passkeys) enabled(w http.ResponseWriter) bool {
	if h.WebAuthn == nil {
		jsonError(w, "Passkeys are not configured", http.StatusNotFound)
		return false
	}
	return true
}

// BeginRegistration starts a passkey registration ceremony for the current
// user. An optional ?label= names the new passkey.
// POST /api/passkeys/register/begin
func (h *Passkeys) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	user := middleware.UserFromContext(r.Context())

	pu, err := models.LoadPasskeyUser(h.DB, user)
	if err != nil {
		serverError(w, h.Log, "load passkey user failed", err, "user_id", user.ID)
		return
	}

	creation, session, err := h.WebAuthn.BeginRegistration(pu)
	if err != nil {
		serverError(w, h.Log, "begin passkey registration failed", err, "user_id", user.ID)
		return
	}
	if err := h.putSession(r, sessionRegistration, session); err != nil {
		serverError(w, h.Log, "store passkey session failed", err)
		return
	}
	h.Sessions.Put(r.Context(), sessionLabel, strings.TrimSpace(r.URL.Query().Get("label")))

	writeJSON(w, http.StatusOK, creation)
}

// FinishRegistration completes a passkey registration ceremony.
// POST /api/passkeys/register/finish
func (h *Passkeys) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	user := middleware.UserFromContext(r.Context())

	session, ok := h.popSession(w, r, sessionRegistration)
	if !ok {
		return
	}
	pu, err := models.LoadPasskeyUser(h.DB, user)
	if err != nil {
		serverError(w, h.Log, "load passkey user failed", err, "user_id", user.ID)
		return
	}

	credential, err := h.WebAuthn.FinishRegistration(pu, *session, r)
	if err != nil {
		h.Log.Warn("passkey registration failed", "user_id", user.ID, "error", err)
		jsonError(w, "Registration failed", http.StatusBadRequest)
		return
	}

	label := h.Sessions.PopString(r.Context(), sessionLabel)
	pk, err := models.CreatePasskey(h.DB, user.ID, credential, label)
	if err != nil {
		serverError(w, h.Log, "store passkey failed", err, "user_id", user.ID)
		return
	}

	h.Log.Info("passkey registered", "user_id", user.ID, "passkey_id", pk.ID)
	writeJSON(w, http.StatusCreated, passkeyView{ID: pk.ID, Label: nullStr(pk.Label), CreatedAt: pk.CreatedAt})
}

// BeginLogin starts a discoverable passkey login; no username is needed.
// POST /api/passkeys/login/begin
func (h *Passkeys) BeginLogin(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	assertion, session, err := h.WebAuthn.BeginDiscoverableLogin()
	if err != nil {
		serverError(w, h.Log, "begin passkey login failed", err)
		return
	}
	if err := h.putSession(r, sessionLogin, session); err != nil {
		serverError(w, h.Log, "store passkey session failed", err)
		return
	}
	writeJSON(w, http.StatusOK, assertion)
}

// FinishLogin completes a passkey login and starts a session.
// POST /api/passkeys/login/finish
func (h *Passkeys) FinishLogin(w http.ResponseWriter, r *http.Request) {
	if !h.enabled(w) {
		return
	}
	session, ok := h.popSession(w, r, sessionLogin)
	if !ok {
		return
	}

	lookup := func(rawID, userHandle []byte) (webauthn.User, error) {
		user, err := models.GetUserByID(h.DB, models.UserIDFromHandle(userHandle))
		if err != nil {
			return nil, err
		}
		return models.LoadPasskeyUser(h.DB, user)
	}

	found, credential, err := h.WebAuthn.FinishPasskeyLogin(lookup, *session, r)
	if err != nil {
		h.Log.Warn("passkey login failed", "error", err)
		jsonError(w, "Login failed", http.StatusUnauthorized)
		return
	}

	if err := models.UpdatePasskeySignCount(h.DB, credential.ID,
		credential.Authenticator.SignCount, credential.Authenticator.CloneWarning); err != nil {
		h.Log.Warn("update passkey sign count failed", "error", err)
	}

	pu, ok := found.(*models.PasskeyUser)
	if !ok {
		serverError(w, h.Log, "unexpected passkey user type", errors.New("type assertion failed"))
		return
	}

	token, err := h.Auth.startSession(r, pu.User.ID)
	if err != nil {
		serverError(w, h.Log, "session renew failed", err)
		return
	}

	h.Log.Info("passkey login", "user_id", pu.User.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      newUserView(pu.User),
		"csrfToken": token,
	})
}

// List returns the current user's passkeys.
// GET /api/passkeys
func (h *Passkeys) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	keys, err := models.ListPasskeys(h.DB, user.ID)
	if err != nil {
		serverError(w, h.Log, "list passkeys failed", err, "user_id", user.ID)
		return
	}
	out := make([]passkeyView, 0, len(keys))
	for _, k := range keys {
		out = append(out, passkeyView{ID: k.ID, Label: nullStr(k.Label), CreatedAt: k.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// Delete removes one of the current user's passkeys.
// DELETE /api/passkeys/{id}
func (h *Passkeys) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, "Invalid passkey ID", http.StatusBadRequest)
		return
	}

	err = models.DeletePasskey(h.DB, user.ID, id)
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, "Passkey not found", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, h.Log, "delete passkey failed", err, "user_id", user.ID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Passkeys) putSession(r *http.Request, key string, session *webauthn.SessionData) error {
	b, err := json.Marshal(session)
	if err != nil {
		return err
	}
	h.Sessions.Put(r.Context(), key, string(b))
	return nil
}

func (h *Passkeys) popSession(w http.ResponseWriter, r *http.Request, key string) (*webauthn.SessionData, bool) {
	raw := h.Sessions.PopString(r.Context(), key)
	if raw == "" {
		jsonError(w, "No passkey ceremony in progress", http.StatusBadRequest)
		return nil, false
	}
	var session webauthn.SessionData
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		h.Log.Warn("invalid passkey session", "error", err)
		jsonError(w, "Invalid session", http.StatusBadRequest)
		return nil, false
	}
	return &session, true
}
