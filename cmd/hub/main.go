package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/syndilab/hub/internal/alert"
	"github.com/syndilab/hub/internal/config"
	"github.com/syndilab/hub/internal/domain"
	"github.com/syndilab/hub/internal/httpserver"
	"github.com/syndilab/hub/internal/keys"
	"github.com/syndilab/hub/internal/ratelimit"
	"github.com/syndilab/hub/internal/settings"
	"github.com/syndilab/hub/internal/sqlstore"
	"github.com/syndilab/hub/internal/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := sqlstore.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	logger.Info("connected to database")

	settingsStore, err := settings.NewStore(cfg.SettingsPath, logger)
	if err != nil {
		return fmt.Errorf("load alert settings: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Alerting pipeline: dispatcher → detector → scheduler.
	var mailer alert.Mailer
	if cfg.SMTPHost != "" {
		mailer = alert.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}
	dispatcher := alert.NewDispatcher(
		settingsStore,
		alert.NewWebhookClient(logger),
		mailer,
		store,
		cfg.DashboardURL,
		cfg.DefaultEmail,
		logger,
	)
	detector := alert.NewDetector(store, settingsStore, dispatcher, logger)
	scheduler := alert.NewScheduler(detector, logger)
	scheduler.Apply(settingsStore.Get())
	settingsStore.Subscribe(scheduler.Apply)
	defer scheduler.Stop()

	// Hot reload of the settings file.
	go func() {
		if err := settingsStore.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Error("settings watcher exited", "error", err)
		}
	}()

	hooks := domain.NewHooks()
	broadcaster := stream.NewBroadcaster(logger)
	hooks.OnEventStored(broadcaster.Publish)
	defer broadcaster.Close()

	registry := keys.NewRegistry(store, hooks, logger)
	ingest := domain.NewIngestService(store, detector, hooks, logger)
	limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)

	server := httpserver.NewServer(cfg, httpserver.Deps{
		Ingest:     ingest,
		Registry:   registry,
		Limiter:    limiter,
		Events:     store,
		Alerts:     store,
		Settings:   settingsStore,
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
		Stream:     broadcaster,
		Prober:     store,
	}, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("hub started", "port", cfg.Port, "version", config.Version)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
