package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/alexedwards/scs/v2"
)

type csrfContextKey string

const csrfTokenCtxKey csrfContextKey = "csrf_token"

// CSRFHeader is the request header clients echo the session token in.
const CSRFHeader = "X-CSRF-Token"

const csrfSessionKey = "csrf_token"

// CSRFProtect keeps a per-session token and requires it in the X-CSRF-Token
// header on POST, PUT, PATCH and DELETE. Clients read the token from
// GET /api/session. Must run inside scs LoadAndSave.
func CSRFProtect(sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sm.GetString(r.Context(), csrfSessionKey)
			if token == "" {
				token = generateCSRFToken()
				sm.Put(r.Context(), csrfSessionKey, token)
			}

			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
				if !csrfTokensMatch(token, r.Header.Get(CSRFHeader)) {
					writeError(w, http.StatusForbidden, "invalid CSRF token")
					return
				}
			}

			ctx := context.WithValue(r.Context(), csrfTokenCtxKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CSRFTokenFromContext retrieves the CSRF token from the request context.
func CSRFTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(csrfTokenCtxKey).(string)
	return s
}

// RenewCSRFToken replaces the session token, e.g. after login.
func RenewCSRFToken(sm *scs.SessionManager, ctx context.Context) string {
	token := generateCSRFToken()
	sm.Put(ctx, csrfSessionKey, token)
	return token
}

// generateCSRFToken returns a 32-byte hex-encoded random string.
func generateCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: failed to generate random token: " + err.Error())
	}
	return hex.EncodeToString(b)
}

func csrfTokensMatch(expected, actual string) bool {
	if expected == "" || actual == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
