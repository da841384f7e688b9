package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// csrfSession runs a GET through the handler and returns the session cookies
// and the issued token.
func csrfSession(t *testing.T, handler http.Handler, token *string) []*http.Cookie {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rr.Code)
	}
	if *token == "" {
		t.Fatal("no CSRF token issued")
	}
	return rr.Result().Cookies()
}

func TestCSRFProtect_GeneratesToken(t *testing.T) {
	sm := testSessionManager()

	var gotToken string
	handler := sm.LoadAndSave(CSRFProtect(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = CSRFTokenFromContext(r.Context())
	})))

	csrfSession(t, handler, &gotToken)
	if len(gotToken) != 64 {
		t.Errorf("expected 64-char token, got %d chars", len(gotToken))
	}
}

func TestCSRFProtect_StateChangingMethods(t *testing.T) {
	for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
		t.Run(method, func(t *testing.T) {
			sm := testSessionManager()
			var token string
			var called int
			handler := sm.LoadAndSave(CSRFProtect(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				token = CSRFTokenFromContext(r.Context())
				called++
			})))
			cookies := csrfSession(t, handler, &token)

			cases := []struct {
				name   string
				header string
				want   int
			}{
				{"missing token", "", http.StatusForbidden},
				{"wrong token", "not-the-token", http.StatusForbidden},
				{"valid token", token, http.StatusOK},
			}
			for _, tc := range cases {
				req := httptest.NewRequest(method, "/", nil)
				for _, c := range cookies {
					req.AddCookie(c)
				}
				if tc.header != "" {
					req.Header.Set(CSRFHeader, tc.header)
				}
				rr := httptest.NewRecorder()
				handler.ServeHTTP(rr, req)
				if rr.Code != tc.want {
					t.Errorf("%s: status = %d, want %d", tc.name, rr.Code, tc.want)
				}
			}
			// One GET plus the valid request.
			if called != 2 {
				t.Errorf("handler called %d times, want 2", called)
			}
		})
	}
}

func TestCSRFProtect_AllowsGetWithoutToken(t *testing.T) {
	sm := testSessionManager()
	handler := sm.LoadAndSave(CSRFProtect(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/session", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

func TestCSRFTokensMatch(t *testing.T) {
	tests := []struct {
		expected, actual string
		want             bool
	}{
		{"abc", "abc", true},
		{"abc", "abd", false},
		{"", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		if got := csrfTokensMatch(tt.expected, tt.actual); got != tt.want {
			t.Errorf("csrfTokensMatch(%q, %q) = %v, want %v", tt.expected, tt.actual, got, tt.want)
		}
	}
}
