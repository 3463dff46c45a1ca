package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ae3gis/internal/alerts"
	"ae3gis/internal/config"
	"ae3gis/internal/db"
	"ae3gis/internal/gns3"
	"ae3gis/internal/logger"
	"ae3gis/internal/prober"
	"ae3gis/internal/telemetry"
	"ae3gis/internal/upstream"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadProber()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logg := logger.New("ae3gis-prober", cfg.LogLevel)
	otelShutdown, err := telemetry.Init(ctx, "ae3gis-prober", telemetry.SettingsFromEnv(), logg)
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

	dbConn, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseConnectTimeout, logg)
	if err != nil {
		logg.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	healthRepo := upstream.NewSQLRepository(dbConn)
	if err := healthRepo.EnsureSchema(ctx); err != nil {
		logg.Error("schema setup failed", "err", err)
		os.Exit(1)
	}

	notifier := alerts.New(alerts.Config{
		WebhookURL:   cfg.AlertWebhookURL,
		DedupeWindow: cfg.AlertDedupeWindow,
		SendResolved: cfg.AlertSendResolved,
	}, logg)

	client := gns3.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout)
	p := prober.New(cfg, client, healthRepo, notifier, logg, nil)

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("prober exited", "err", err)
		os.Exit(1)
	}
}
