package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ae3gis/internal/api"
	"ae3gis/internal/config"
	"ae3gis/internal/db"
	"ae3gis/internal/gns3"
	"ae3gis/internal/logger"
	"ae3gis/internal/telemetry"
	"ae3gis/internal/upstream"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPI()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logg := logger.New("ae3gis-api", cfg.LogLevel)
	if !cfg.UpstreamConfigured() {
		logg.Warn("AE3GIS_URL is not set; topology requests will fail until it is configured")
	}

	otelShutdown, err := telemetry.Init(ctx, "ae3gis-api", telemetry.SettingsFromEnv(), logg)
	if err != nil {
		logg.Error("opentelemetry init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logg.Error("opentelemetry shutdown failed", "err", err)
		}
	}()

	// Topology requests never touch the health store, so the API serves
	// while it connects and /api/gns3/status errors until then.
	healthRepo := upstream.NewPendingRepository()
	go healthRepo.AttachWhenReady(ctx, func(ctx context.Context) (upstream.Repository, error) {
		dbConn, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseConnectTimeout, logg)
		if err != nil {
			return nil, err
		}
		context.AfterFunc(ctx, func() { _ = dbConn.Close() })
		return upstream.NewSQLRepository(dbConn), nil
	}, logg)

	client := gns3.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout)
	statusSvc := upstream.New(healthRepo, cfg.UpstreamURL, cfg.UpstreamFreshnessWindow, logg)
	server := api.NewServer(cfg, client, statusSvc, logg, nil)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("server exited with error", "err", err)
		os.Exit(1)
	}
	logg.Info("shutting down")
}
