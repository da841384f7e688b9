package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/carpenike/reformer/internal/config"
	"github.com/carpenike/reformer/internal/database"
	"github.com/carpenike/reformer/internal/handlers"
	"github.com/carpenike/reformer/internal/llm"
	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/models"
	"github.com/carpenike/reformer/internal/notify"
	"github.com/carpenike/reformer/internal/observability"
	"github.com/carpenike/reformer/internal/scheduler"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides REFORMER_CONFIG)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "reformer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	for _, w := range warnings {
		log.Warn("config warning", "detail", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.Init(ctx, log, observability.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		Version:     version,
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()

	// Open database, run migrations and load the studio catalog.
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return err
	}
	if err := database.Seed(db); err != nil {
		return err
	}
	log.Info("database ready", "path", filepath.Clean(cfg.DBPath))

	source, err := models.GetOrCreateSecretKey(db)
	if err != nil {
		return err
	}
	if source == "generated" {
		log.Warn("generated a settings encryption key; set " + models.SecretKeyEnv + " to keep it outside the database")
	}

	if err := handlers.EnsureAdmin(db, log, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Email); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	sessionManager := scs.New()
	sessionManager.Store = sqlite3store.New(db)
	sessionManager.Lifetime = cfg.SessionLifetime
	sessionManager.Cookie.HttpOnly = true
	sessionManager.Cookie.SameSite = http.SameSiteLaxMode
	sessionManager.Cookie.Secure = cfg.SecureCookies

	var wa *webauthn.WebAuthn
	if cfg.RP.ID != "" {
		wa, err = webauthn.New(&webauthn.Config{
			RPID:          cfg.RP.ID,
			RPDisplayName: cfg.RP.DisplayName,
			RPOrigins:     cfg.RP.Origins,
		})
		if err != nil {
			return fmt.Errorf("init webauthn: %w", err)
		}
		log.Info("passkeys enabled", "rp_id", cfg.RP.ID)
	}

	dispatcher := notify.NewDispatcher(db, log)

	agg := llm.NewAggregator(llm.NewSQLStore(db), log)
	agg.Location = cfg.Location()
	agg.WindowDays = cfg.ContextWindowDays

	maint := scheduler.New(db, log)
	maint.Start()
	defer maint.Stop()

	router := handlers.NewRouter(handlers.Deps{
		DB:             db,
		Sessions:       sessionManager,
		WebAuthn:       wa,
		Aggregator:     agg,
		Notifier:       dispatcher,
		Notify:         dispatcher,
		Maintenance:    maint,
		HistoryLimit:   cfg.ChatHistoryLimit,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Version:        version,
		Log:            log,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("reformer listening", "addr", cfg.Addr, "version", version,
			"ai_configured", models.IsAIConfigured(db))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	dispatcher.Wait()
	return nil
}
