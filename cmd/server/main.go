package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SendFlow/internal/api"
	"SendFlow/internal/audit"
	"SendFlow/internal/config"
	"SendFlow/internal/engine"
	"SendFlow/internal/metrics"
	"SendFlow/internal/notifier"
	"SendFlow/internal/registry"
	"SendFlow/internal/store"
	"SendFlow/internal/templates"
	"SendFlow/internal/transport"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pg.Pool.Close()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Core services
	// ------------------------------------------------
	recorder := &audit.Recorder{
		Store: pg,
		Log:   logger,
	}

	eng := &engine.Engine{
		Registry: registry.New(),
		Dialer:   transport.NewFactory(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPSSL, logger),
		Recorder: recorder,
		Store:    pg,
		Templates: &templates.Source{
			Store:         pg,
			DefaultSender: cfg.DefaultSenderName,
		},
		Log:     logger,
		Limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendRate),
	}
	eng.Notifier = notifier.New(cfg.HeartbeatInterval, eng.ProgressSnapshot, logger)

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	apiHandler := &api.Handler{
		Engine:    eng,
		Notifier:  eng.Notifier,
		Recorder:  recorder,
		Audits:    pg,
		Templates: pg,
		Log:       logger,
		MaxRows:   cfg.MaxRows,
	}
	apiHandler.Register(router)

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
