package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/carpenike/reformer/internal/llm"
	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
)

// Deps are the services the router wires into handlers.
type Deps struct {
	DB          *sql.DB
	Sessions    *scs.SessionManager
	WebAuthn    *webauthn.WebAuthn // nil disables passkeys
	Aggregator  *llm.Aggregator
	Notifier    llm.Notifier
	Notify      ConnectionTester
	Maintenance MaintenanceRunner
	// NewProvider resolves the LLM provider per request. Defaults to
	// llm.NewProviderFromSettings.
	NewProvider    func(*sql.DB) (llm.Provider, error)
	HistoryLimit   int
	CORSOrigins    []string
	TrustedProxies []string
	Version        string
	Log            *logger.Logger
}

// Router is the API handler. Close stops the rate limiters' cleanup goroutines.
type Router struct {
	http.Handler
	limiters []*middleware.RateLimiter
}

// Close releases background resources.
func (rt *Router) Close() {
	for _, l := range rt.limiters {
		l.Stop()
	}
}

// NewRouter builds the HTTP API.
func NewRouter(d Deps) *Router {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	if d.NewProvider == nil {
		d.NewProvider = llm.NewProviderFromSettings
	}

	auth := &Auth{DB: d.DB, Sessions: d.Sessions, Log: log}
	passkeys := &Passkeys{DB: d.DB, Sessions: d.Sessions, WebAuthn: d.WebAuthn, Auth: auth, Log: log}
	onboarding := &Onboarding{DB: d.DB, Log: log}
	tracking := &Tracking{DB: d.DB, Notifier: d.Notifier, Location: d.Aggregator.Location, Now: d.Aggregator.Now, Log: log}
	coach := &Coach{
		DB: d.DB, Aggregator: d.Aggregator, Notifier: d.Notifier,
		NewProvider: d.NewProvider, HistoryLimit: d.HistoryLimit, Log: log,
	}
	plans := &Plans{DB: d.DB, Log: log}
	notifications := &Notifications{DB: d.DB, Log: log}
	settings := &Settings{DB: d.DB, Notify: d.Notify, Maintenance: d.Maintenance, NewProvider: d.NewProvider, Log: log}

	loginLimiter := middleware.NewRateLimiter(10, time.Minute, d.TrustedProxies...)
	aiLimiter := middleware.NewRateLimiter(20, time.Minute, d.TrustedProxies...)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Tracing)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(d.CORSOrigins))

	r.Method(http.MethodGet, "/health", &Health{DB: d.DB, Version: d.Version, Log: log})

	r.Route("/api", func(r chi.Router) {
		r.Use(d.Sessions.LoadAndSave)
		r.Use(middleware.CSRFProtect(d.Sessions))

		r.Get("/session", auth.Session)
		r.With(loginLimiter.Limit).Post("/login", auth.Login)
		r.Post("/logout", auth.Logout)
		r.With(loginLimiter.Limit).Post("/passkeys/login/begin", passkeys.BeginLogin)
		r.With(loginLimiter.Limit).Post("/passkeys/login/finish", passkeys.FinishLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(d.Sessions, d.DB, log))

			r.Post("/passkeys/register/begin", passkeys.BeginRegistration)
			r.Post("/passkeys/register/finish", passkeys.FinishRegistration)
			r.Get("/passkeys", passkeys.List)
			r.Delete("/passkeys/{id}", passkeys.Delete)

			r.Get("/onboarding", onboarding.Get)
			r.Put("/onboarding", onboarding.Update)

			r.Get("/tracking", tracking.List)
			r.Post("/tracking", tracking.Create)
			r.Post("/tracking/import", tracking.Import)

			r.Get("/context", coach.Context)
			r.Get("/chat", coach.ChatHistory)
			r.With(aiLimiter.Limit).Post("/chat", coach.Chat)
			r.Get("/chat/system-prompt", coach.GetSystemPrompt)
			r.Put("/chat/system-prompt", coach.PutSystemPrompt)

			r.With(aiLimiter.Limit).Post("/plans/generate", coach.GeneratePlan)
			r.Get("/plans", plans.List)
			r.Get("/plans/active", plans.Active)
			r.Post("/plans/{id}/archive", plans.Archive)
			r.Put("/workouts/{id}", plans.UpdateWorkout)

			r.Get("/classes", plans.Classes)
			r.Get("/activity-types", plans.ActivityTypes)

			r.Get("/notifications", notifications.List)
			r.Post("/notifications/{id}/read", notifications.MarkRead)
			r.Post("/notifications/read-all", notifications.MarkAllRead)
			r.Get("/notifications/preferences", notifications.Preferences)
			r.Put("/notifications/preferences", notifications.UpdatePreferences)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/settings", settings.List)
				r.Put("/settings", settings.Update)
				r.Post("/llm/test", settings.TestLLM)
				r.Post("/notify/test", settings.TestNotify)
				r.Get("/maintenance", settings.MaintenanceStatus)
				r.Post("/maintenance/run", settings.RunMaintenance)
			})
		})
	})

	return &Router{Handler: r, limiters: []*middleware.RateLimiter{loginLimiter, aiLimiter}}
}
