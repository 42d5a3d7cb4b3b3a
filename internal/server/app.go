// Package server initializes and runs the authentication server: it
// connects storage, applies migrations, wires the services and starts
// the HTTP adapter and the background janitor, with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/passlink/passlink/internal/logging"
	"github.com/passlink/passlink/internal/server/audit"
	"github.com/passlink/passlink/internal/server/config"
	"github.com/passlink/passlink/internal/server/fingerprint"
	"github.com/passlink/passlink/internal/server/geo"
	"github.com/passlink/passlink/internal/server/httpapi"
	"github.com/passlink/passlink/internal/server/mailer"
	"github.com/passlink/passlink/internal/server/maintenance"
	"github.com/passlink/passlink/internal/server/repositories/repomanager"
	"github.com/passlink/passlink/internal/server/services"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    *repomanager.PostgresStore
	resolver geo.Resolver
	server   *httpapi.Server
	janitor  *maintenance.Janitor
}

func NewApp(cfg *config.Config) (*App, error) {

	handler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(handler)

	store, err := repomanager.NewPostgresStore(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := store.RunMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var resolver geo.Resolver
	if cfg.GeoDBPath != "" {
		resolver, err = geo.NewMaxMindResolver(cfg.GeoDBPath, cfg.GeoCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("geo init error: %w", err)
		}
	}

	renderer, err := mailer.NewLinkRenderer()
	if err != nil {
		return nil, fmt.Errorf("mail template error: %w", err)
	}

	recorder := audit.NewRecorder(store, logger)
	binder := fingerprint.NewBinder(fingerprint.Granularity(cfg.FingerprintGranularity))
	limiter := services.NewRateLimiter(store, cfg, recorder, logger)
	tokens := services.NewTokenService(store, cfg.TokenTTL, logger)
	sessions := services.NewSessionManager(store, cfg.SessionSlide, cfg.SessionAbsolute, logger)
	csrf := services.NewCsrfGuard(store, logger)

	authSvc := services.NewAuthService(cfg, store, limiter, tokens, sessions, csrf,
		binder, recorder, mailer.NewLogMailer(logger), renderer, resolver, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		store:    store,
		resolver: resolver,
		server:   httpapi.NewServer(cfg, authSvc, sessions, csrf, logger),
		janitor:  maintenance.NewJanitor(store, cfg, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.janitor.Run(ctx)
	}()

	wg.Wait()

	if app.resolver != nil {
		if err := app.resolver.Close(); err != nil {
			app.logger.Error(ctx, err.Error())
		}
	}
	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
