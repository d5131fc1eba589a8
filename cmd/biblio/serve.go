package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/justyntemme/biblio/internal/api"
	"github.com/justyntemme/biblio/internal/config"
	"github.com/justyntemme/biblio/internal/coverscan"
	"github.com/justyntemme/biblio/internal/jobs"
	"github.com/justyntemme/biblio/internal/metrics"
	"github.com/justyntemme/biblio/internal/providers"
	"github.com/justyntemme/biblio/internal/search"
	"github.com/justyntemme/biblio/internal/session"
	"github.com/justyntemme/biblio/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("url", "", "Server bind address (e.g., :8080 or 0.0.0.0:8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	if err := v.BindPFlag("server.url", cmd.Flags().Lookup("url")); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	initLogging(level)
	if used := v.ConfigFileUsed(); used != "" {
		slog.Info("loaded config", "file", used)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	keys := storage.NewKeyStore(db, cfg.KeyFallback())
	m := metrics.New()

	store := session.NewMemoryStore(cfg.Search.SessionTTL, cfg.Search.MaxSessions)
	m.TrackSessions(store)

	svc := search.NewService(search.NewLocalSearcher(db), store, buildProviders(cfg, keys, m), db)
	mgr := jobs.NewManager(svc, jobs.Config{
		TTL:        cfg.Jobs.TTL,
		MaxPages:   cfg.Jobs.MaxPages,
		MaxRunning: cfg.Jobs.MaxRunning,
	}, m)

	scanner, err := coverscan.NewScanner(keys, coverscan.Options{
		Open:      coverscan.Gemini(cfg.CoverScan.Model),
		CacheSize: cfg.CoverScan.CacheSize,
		Timeout:   cfg.CoverScan.Timeout,
		Observer:  m,
	})
	if err != nil {
		return err
	}

	handler := api.NewHandler(db, keys, svc, mgr, api.Options{
		Scanner:        scanner,
		MaxUploadBytes: cfg.CoverScan.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(handler, m.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go purgeLoop(ctx, store, mgr, cfg.Search.SessionTTL)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("biblio server starting", "addr", srv.Addr, "database", cfg.Database.Path, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		slog.Warn("search jobs still running at shutdown", "error", err)
	}
	return nil
}

// buildProviders creates the enabled providers in their fixed order, each
// rate limited and instrumented
func buildProviders(cfg *config.Config, keys providers.KeySource, obs providers.Observer) []providers.Provider {
	timeout := cfg.Search.ProviderTimeout
	pc := cfg.Providers

	var provs []providers.Provider
	add := func(p providers.Provider, c config.ProviderConfig) {
		p = providers.WithRateLimit(p, c.RateLimit, c.Burst)
		provs = append(provs, providers.WithObserver(p, obs))
		slog.Debug("provider enabled", "provider", p.Name(), "rate_limit", c.RateLimit)
	}

	if pc.GoogleBooks.Enabled {
		add(providers.NewGoogleBooksProvider(keys, providers.Options{BaseURL: pc.GoogleBooks.BaseURL, Timeout: timeout}), pc.GoogleBooks)
	}
	if pc.OpenLibrary.Enabled {
		add(providers.NewOpenLibraryProvider(providers.Options{BaseURL: pc.OpenLibrary.BaseURL, Timeout: timeout}), pc.OpenLibrary)
	}
	if pc.DNB.Enabled {
		add(providers.NewDNBProvider(providers.Options{BaseURL: pc.DNB.BaseURL, Timeout: timeout}), pc.DNB)
	}
	return provs
}

// purgeLoop drops expired sessions and jobs until ctx is done
func purgeLoop(ctx context.Context, store session.Store, mgr *jobs.Manager, every time.Duration) {
	ticker := time.NewTicker(max(every/4, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := store.PurgeExpired()
			jobCount := mgr.PurgeExpired()
			if sessions+jobCount > 0 {
				slog.Debug("purged expired searches", "sessions", sessions, "jobs", jobCount)
			}
		}
	}
}
