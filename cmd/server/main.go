// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"donation-service/config"
	"donation-service/internal/handler"
	authmw "donation-service/internal/middleware"
	"donation-service/internal/provider/flutterwave"
	"donation-service/internal/pub"
	"donation-service/internal/repository"
	"donation-service/internal/router"
	"donation-service/internal/usecase"
	"donation-service/pkg/cache"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using process environment")
	}

	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	logger.Info("starting donation service")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("currency", cfg.App.DefaultCurrency),
		zap.Bool("insecure_webhooks", cfg.Flutterwave.InsecureWebhooks()))

	// Database
	dbPool, err := config.ConnectDB(context.Background(), cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("connected to database", zap.String("database", cfg.Database.DBName))

	// Redis (optional, degraded mode without it)
	var (
		settledCache usecase.SettlementCache
		cachePinger  router.Pinger
	)
	if cfg.Redis.Enabled {
		cacheSvc, err := cache.NewCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, running without settled cache", zap.Error(err))
		} else {
			defer func() {
				hits, misses := cacheSvc.Stats()
				logger.Info("settled cache stats", zap.Int64("hits", hits), zap.Int64("misses", misses))
				cacheSvc.Close()
			}()
			settledCache = cacheSvc
			cachePinger = cacheSvc
		}
	}

	// Kafka (optional)
	var events usecase.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		publisher := pub.NewDonationEventPublisher(pub.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger), logger)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close kafka writer", zap.Error(err))
			}
		}()
		events = publisher
		logger.Info("kafka writer initialized",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(dbPool)
	donationRepo := repository.NewDonationRepository(dbPool)
	notificationRepo := repository.NewNotificationRepository(dbPool)

	// Provider
	gateway := flutterwave.NewFlutterwaveProvider(cfg.Flutterwave, logger)

	// Usecases
	campaignUC := usecase.NewCampaignUsecase(campaignRepo, logger)
	donationUC := usecase.NewDonationUsecase(
		campaignRepo,
		donationRepo,
		gateway,
		events,
		cfg.App,
		logger,
	)
	reconcileUC := usecase.NewReconcileUsecase(
		donationRepo,
		notificationRepo,
		gateway,
		settledCache,
		events,
		cfg.Flutterwave.WebhookHash,
		logger,
	)

	// Handlers
	campaignHandler := handler.NewCampaignHandler(campaignUC, donationUC, logger)
	webhookHandler := handler.NewWebhookHandler(reconcileUC, logger)
	verifier := authmw.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	r := router.SetupRoutes(campaignHandler, webhookHandler, verifier, cachePinger, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Flutterwave.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("donation service started successfully",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Handlers may run for the full request timeout.
	ctx, cancel := context.WithTimeout(context.Background(), router.RequestTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop new event publishes and drain in-flight ones before the writer closes.
	donationUC.Close()
	reconcileUC.Close()

	logger.Info("server stopped")
}
