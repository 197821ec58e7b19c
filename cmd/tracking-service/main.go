package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tracking-service/internal/auth"
	"tracking-service/internal/client"
	"tracking-service/internal/config"
	"tracking-service/internal/db"
	"tracking-service/internal/geo"
	httphandler "tracking-service/internal/http"
	"tracking-service/internal/http/middleware"
	"tracking-service/internal/logger"
	"tracking-service/internal/repository"
	"tracking-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	sessionRepo := repository.NewSessionRepository(database)
	historyRepo := repository.NewLocationHistoryRepository(database)
	spatialIndex := geo.NewIndex()

	notifyClient := client.NewNotifyClient(cfg)

	trackingService := service.NewTrackingService(sessionRepo, spatialIndex, cfg.Tracking)
	ingestService := service.NewIngestService(trackingService, sessionRepo, historyRepo, spatialIndex, notifyClient, cfg.Tracking, appLogger)
	nearbyService := service.NewNearbyService(sessionRepo, historyRepo, spatialIndex)
	retentionService := service.NewRetentionService(sessionRepo, historyRepo, spatialIndex, cfg.Tracking, appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := nearbyService.RebuildIndex(ctx); err != nil {
		appLogger.Error().Err(err).Msg("failed to rebuild spatial index")
	} else {
		appLogger.Info().Int("entries", n).Msg("spatial index rebuilt from live sessions")
	}

	go retentionService.Run(ctx)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(trackingService, ingestService, nearbyService, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting tracking service")

	if err := router.Run(addr); err != nil {
		appLogger.Error().Err(err).Msg("failed to start server")
		os.Exit(1)
	}
}
