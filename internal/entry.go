// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tally/internal/api"
	"github.com/starford/tally/internal/dispatch"
	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/mcpserver"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/rules"
	"github.com/starford/tally/internal/sse"
	"github.com/starford/tally/internal/storage"
	"github.com/starford/tally/internal/watcher"
	"github.com/starford/tally/internal/workspace"
)

// runtime is everything built from a Config.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	store   *storage.FS
	rules   *rules.Manager
	session *workspace.Session
	broker  *sse.Broker
	svc     *engine.Service
}

func (rt *runtime) Close() {
	rt.broker.Close()
	if err := rt.rules.Close(); err != nil {
		rt.logger.Warn("rule store close failed", slog.String("error", err.Error()))
	}
}

func setup(ctx context.Context, opts []Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("rules_driver", cfg.Rules.Driver),
		slog.String("rules_path", cfg.Rules.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	ruleStore, err := openRuleStore(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("init rule store: %w", err)
	}
	mgr := rules.NewManager(ruleStore, logger)
	if err := mgr.Load(ctx); err != nil {
		ruleStore.Close()
		return nil, fmt.Errorf("load rules: %w", err)
	}

	broker := sse.NewBroker(time.Second)
	session := workspace.New(store)
	disp := dispatch.New(session, mgr,
		dispatch.WithCursor(session),
		dispatch.WithNotifier(broker),
		dispatch.WithLogger(logger),
		dispatch.WithDebounce(cfg.Dispatch.Debounce),
	)

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		rules:   mgr,
		session: session,
		broker:  broker,
		svc:     engine.New(session, disp, mgr, broker, logger),
	}, nil
}

func openRuleStore(cfg RulesConfig) (rules.Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	switch cfg.Driver {
	case RulesDriverSQLite:
		return rules.OpenSQLite(cfg.Path)
	default:
		return rules.NewFileStore(cfg.Path), nil
	}
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher feeding document-modified passes.
	if cfg.Watch.Enabled {
		wopts := watcher.Options{Debounce: cfg.Watch.Debounce}
		if cfg.Watch.ActiveOnly {
			wopts.Active = rt.session.Active
		}
		g.Go(func() error {
			return watcher.Watch(gCtx, rt.store.Root(), logger, wopts, func(ctx context.Context, path string) {
				rt.svc.Observe(ctx, path)
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Closing the broker ends open event streams so Shutdown can drain.
		rt.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// Apply runs the command id once against file, a path relative to the vault
// root or an absolute path inside it. cursorLine, when set, arms the
// frontmatter guard as if an editor showed the file.
func Apply(ctx context.Context, file, id string, cursorLine *int, opts ...Option) ([]models.UpdateOutcome, error) {
	rt, err := setup(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	path := filepath.ToSlash(file)
	if filepath.IsAbs(file) {
		if path, err = rt.store.Rel(file); err != nil {
			return nil, err
		}
	}
	if path, err = rt.session.Open(ctx, path, cursorLine); err != nil {
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	_, outcomes, err := rt.svc.RunCommand(ctx, id, path)
	return outcomes, err
}

// ServeMCP exposes the engine over MCP on stdin/stdout until the client
// disconnects. Logs must not go to stdout; pass WithLogOutput(os.Stderr).
func ServeMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.svc).ServeStdio()
}

// ImportLegacy replaces the rule configuration with the settings file
// written by the editor plugin.
func ImportLegacy(ctx context.Context, file string, opts ...Option) (*models.Configuration, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read legacy settings: %w", err)
	}
	doc, err := rules.DecodeLegacy(data)
	if err != nil {
		return nil, err
	}

	rt, err := setup(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	return rt.rules.Import(ctx, doc)
}
