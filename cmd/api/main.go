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

	"github.com/timmy/civicembed/internal/api"
	"github.com/timmy/civicembed/internal/api/handler"
	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/logger"
	"github.com/timmy/civicembed/internal/repository"
	"github.com/timmy/civicembed/internal/service"
)

func main() {
	// Initialize logger first (with defaults from the environment)
	envCfg := logger.LoadFromEnv()
	envCfg.ServiceName = "civicembed-api"
	appLogger := logger.NewFromEnv(envCfg)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	appLogger.SetLevel(cfg.Log.Level)
	appLogger.SetFormat(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to get database handle")
	}
	defer sqlDB.Close()

	ctx := context.Background()
	jobs := repository.NewJobRepository(db)

	// A missing embedding credential keeps the server up; run and query report it.
	var embedHandler *handler.EmbedHandler
	worker, err := service.NewWorker(ctx, cfg, db)
	switch {
	case err == nil:
		defer worker.Close()
		embedHandler = handler.NewEmbedHandler(worker.Runner, worker.Embedder, jobs, nil)
		appLogger.WithFields(logger.Fields{
			"model":      worker.Embedder.GetModel(),
			"dimensions": worker.Embedder.Dimensions(),
		}).Info("Embedding worker ready")
	case isConfigError(err):
		appLogger.WithError(err).Error("Embedding worker is not configured; run and query endpoints will fail")
		embedHandler = handler.NewEmbedHandler(nil, nil, jobs, err)
	default:
		appLogger.WithError(err).Fatal("Failed to initialize embedding worker")
	}

	router := api.SetupRouter(handler.NewHealthHandler(sqlDB), embedHandler, &cfg.Server, appLogger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Runs in flight get a bounded grace period to finish their current jobs
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}

func isConfigError(err error) bool {
	var cfgErr *service.ConfigError
	return errors.As(err, &cfgErr)
}
