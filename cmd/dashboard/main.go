package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/air-quality-dashboard/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/air-quality-dashboard/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-dashboard/internal/adapter/moenv"
	"github.com/couchcryptid/air-quality-dashboard/internal/adapter/openmeteo"
	"github.com/couchcryptid/air-quality-dashboard/internal/config"
	"github.com/couchcryptid/air-quality-dashboard/internal/dashboard"
	"github.com/couchcryptid/air-quality-dashboard/internal/domain"
	"github.com/couchcryptid/air-quality-dashboard/internal/observability"
	"github.com/couchcryptid/air-quality-dashboard/internal/refresh"
	"github.com/couchcryptid/air-quality-dashboard/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Live providers are feature-flagged via MOENV_API_KEY / OPENMETEO_ENABLED.
	var ground source.GroundProvider
	if cfg.MOENVEnabled() {
		ground = moenv.NewClient(cfg, logger)
		logger.Info("moenv ground provider enabled", "dataset", cfg.MOENVDataset, "timeout", cfg.MOENVTimeout)
	} else {
		logger.Info("moenv ground provider disabled, serving synthetic data")
	}

	var satellite source.SatelliteProvider
	if cfg.OpenMeteoEnabled {
		satellite = openmeteo.NewClient(cfg, logger)
		logger.Info("openmeteo satellite provider enabled", "timeout", cfg.MultiProviderTimeout)
	}

	src := source.New(ground, satellite, domain.NewRandomGenerator(), source.Options{
		GroundTimeout:        cfg.MOENVTimeout,
		MultiProviderTimeout: cfg.MultiProviderTimeout,
		CacheTTL:             cfg.CacheTTL,
		CacheSize:            cfg.CacheSize,
	}, logger, metrics)
	if src.LiveEnabled() {
		metrics.LiveSourceEnabled.Set(1)
	}

	var (
		publisher dashboard.Publisher
		writer    *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaSnapshotTopic)
	}

	svc := dashboard.New(src, domain.NewSynthesizer(nil), publisher, dashboard.Options{
		PastHours:   cfg.ForecastPastHours,
		FutureHours: cfg.ForecastFutureHours,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Readiness flips once the first station list (live or synthetic) is loaded.
	go svc.Warmup(ctx)

	refresher := refresh.New(src, cfg.StationRefreshInterval, nil, logger, metrics)
	go func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("station refresher error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
