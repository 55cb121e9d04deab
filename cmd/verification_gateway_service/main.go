package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veriquick/golang_services/internal/platform/config"
	"github.com/veriquick/golang_services/internal/platform/database"
	"github.com/veriquick/golang_services/internal/platform/logger"
	"github.com/veriquick/golang_services/internal/platform/messagebroker"
	"github.com/veriquick/golang_services/internal/verification_gateway/app"
	"github.com/veriquick/golang_services/internal/verification_gateway/provider"
	"github.com/veriquick/golang_services/internal/verification_gateway/repository/postgres"
	"github.com/veriquick/golang_services/internal/verification_gateway/resilience"
	gatewayhttp "github.com/veriquick/golang_services/internal/verification_gateway/transport/http"
)

func main() {
	cfg, err := config.Load("./configs", "config.defaults")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Verification Gateway Service starting...", "log_level", cfg.LogLevel)

	dbPool, err := database.NewDBPool(context.Background(), cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL database")

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, "verification-gateway-service", appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS")

	verificationRepo := postgres.NewPgVerificationRepository(dbPool)
	batchRepo := postgres.NewPgBatchRepository(dbPool)
	creditLedger := postgres.NewPgCreditLedger(dbPool)

	resilienceCfg := resilience.Config{
		MaxRetries:       uint64(cfg.MaxRetries),
		InitialDelay:     cfg.InitialRetryDelay,
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}

	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	manager := app.NewProviderManager(cfg.PrimaryProvider, appLogger)
	balances := make(map[string]*app.BalanceCache)
	for _, name := range cfg.FailoverOrder {
		var adapter provider.Client
		switch name {
		case "smspool":
			adapter = provider.NewSMSPoolProvider(appLogger, cfg.SMSPool.BaseURL, cfg.SMSPool.APIKey, nil)
		case "fivesim":
			adapter = provider.NewFiveSimProvider(appLogger, cfg.FiveSim.BaseURL, cfg.FiveSim.APIKey, nil)
		case "mock":
			adapter = provider.NewMockProvider(appLogger, "mock", 0, 10*time.Second)
		default:
			appLogger.Error("Unknown provider in failover order", "provider", name)
			os.Exit(1)
		}

		client := resilience.NewResilientClient(adapter, resilienceCfg, appLogger)

		// One balance call validates credentials; the same client is reused,
		// there is no throwaway validation client.
		if err := client.ValidateCredentials(appCtx); err != nil {
			appLogger.Warn("Provider credential validation failed; registering anyway",
				"provider", name, "error", err)
		}

		manager.Register(client)
		balances[name] = app.NewBalanceCache(client, cfg.BalanceCacheTTL, appLogger)
	}

	if _, ok := manager.Primary(); !ok {
		appLogger.Error("Primary provider is not part of the failover order",
			"primary", cfg.PrimaryProvider, "failover_order", cfg.FailoverOrder)
		os.Exit(1)
	}

	lifecycle := app.NewLifecycleManager(verificationRepo, manager, natsClient, app.LifecycleConfig{
		PollInterval:    cfg.PollInterval,
		MaxPollDuration: cfg.MaxPollDuration,
	}, appLogger)

	bulk := app.NewBulkOrchestrator(creditLedger, manager, lifecycle, verificationRepo, batchRepo,
		natsClient, app.BulkConfig{
			MaxConcurrency: cfg.BulkMaxConcurrency,
			BaseUnitCost:   cfg.BaseUnitCost,
		}, appLogger)

	gatewayService := app.NewGatewayService(creditLedger, manager, lifecycle, bulk,
		verificationRepo, balances, cfg.BaseUnitCost, appLogger)

	router := chi.NewRouter()
	router.Use(chi_middleware.RequestID)
	router.Use(chi_middleware.RealIP)
	router.Use(chi_middleware.Recoverer)
	router.Use(gatewayhttp.PrometheusMetricsMiddleware)
	router.Handle("/metrics", promhttp.Handler())

	handler := gatewayhttp.NewGatewayHandler(gatewayService, appLogger)
	router.Route("/api/v1", handler.RegisterRoutes)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		appLogger.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quitChan
	appLogger.Info("Shutdown signal received", "signal", receivedSignal.String())

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", "error", err)
	}

	lifecycle.Stop() // Interrupted verifications stay pending in the store and can resume on restart

	appLogger.Info("Verification Gateway Service shut down successfully.")
}
