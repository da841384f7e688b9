package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/carpenike/reformer/internal/database"
	"github.com/carpenike/reformer/internal/llm"
	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
	"github.com/carpenike/reformer/internal/models"
	"github.com/carpenike/reformer/internal/scheduler"
)

const testPassword = "correct-horse"

// testDB creates a fresh in-memory SQLite database with migrations applied
// and the studio catalog seeded.
func testDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("run migrations: %v", err)
	}
	if err := database.Seed(db); err != nil {
		db.Close()
		t.Fatalf("seed catalog: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testSessionManager creates a cookie-based in-memory session manager for tests.
func testSessionManager() *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = 30 * 24 * time.Hour
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	return sm
}

func seedUser(t testing.TB, db *sql.DB, username string, admin bool) *models.User {
	t.Helper()
	user, err := models.CreateUser(db, username, testPassword, username+"@example.com", admin)
	if err != nil {
		t.Fatalf("seed user %q: %v", username, err)
	}
	return user
}

// requestWithUser creates a JSON request with the given user set in context
// (simulating the RequireAuth middleware).
func requestWithUser(method, target string, body any, user *models.User) *http.Request {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, target, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	ctx := context.WithValue(r.Context(), middleware.UserContextKey, user)
	return r.WithContext(ctx)
}

// recordingNotifier captures notifications as "kind|title|link".
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, _ int64, kind, title, _, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, kind+"|"+title+"|"+link)
	return n.err
}

func (n *recordingNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type fakeTester struct{ err error }

func (f *fakeTester) TestConnection(context.Context) error { return f.err }

// testEnv is a running API server backed by an in-memory database.
type testEnv struct {
	db       *sql.DB
	srv      *httptest.Server
	notifier *recordingNotifier
	tester   *fakeTester
	// provider is returned by the provider factory; nil means not configured.
	provider *llm.MockProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testDB(t)
	env := &testEnv{
		db:       db,
		notifier: &recordingNotifier{},
		tester:   &fakeTester{},
		provider: llm.NewMockProvider("Great question! Start with two reformer classes a week."),
	}

	agg := llm.NewAggregator(llm.NewSQLStore(db), logger.Nop())
	agg.Location = time.UTC

	rt := NewRouter(Deps{
		DB:          db,
		Sessions:    testSessionManager(),
		Aggregator:  agg,
		Notifier:    env.notifier,
		Notify:      env.tester,
		Maintenance: scheduler.New(db, nil),
		NewProvider: func(*sql.DB) (llm.Provider, error) {
			if env.provider == nil {
				return nil, llm.ErrNotConfigured
			}
			return env.provider, nil
		},
		Version: "test",
		Log:     logger.Nop(),
	})
	t.Cleanup(rt.Close)

	env.srv = httptest.NewServer(rt)
	t.Cleanup(env.srv.Close)
	return env
}

// apiClient is a cookie-keeping client that echoes the CSRF token.
type apiClient struct {
	t      *testing.T
	env    *testEnv
	client *http.Client
	csrf   string
}

func (e *testEnv) newClient(t *testing.T) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	c := &apiClient{t: t, env: e, client: &http.Client{Jar: jar}}
	c.refreshCSRF()
	return c
}

// login creates a session for username, which must already exist.
func (e *testEnv) login(t *testing.T, username string) *apiClient {
	t.Helper()
	c := e.newClient(t)
	status, body := c.do("POST", "/api/login", map[string]string{"username": username, "password": testPassword})
	if status != http.StatusOK {
		t.Fatalf("login %q: status %d: %s", username, status, body)
	}
	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	decode(t, body, &resp)
	c.csrf = resp.CSRFToken
	return c
}

func (c *apiClient) refreshCSRF() {
	c.t.Helper()
	status, body := c.do("GET", "/api/session", nil)
	if status != http.StatusOK {
		c.t.Fatalf("GET /api/session: status %d", status)
	}
	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	decode(c.t, body, &resp)
	c.csrf = resp.CSRFToken
}

func (c *apiClient) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.env.srv.URL+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrf != "" {
		req.Header.Set(middleware.CSRFHeader, c.csrf)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, out
}

func decode(t testing.TB, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}
