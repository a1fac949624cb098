package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/civicembed/internal/config"
	"github.com/timmy/civicembed/internal/logger"
	"github.com/timmy/civicembed/internal/repository"
	"github.com/timmy/civicembed/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	envCfg := logger.LoadFromEnv()
	envCfg.ServiceName = "civicembed-worker"
	appLogger := logger.NewFromEnv(envCfg)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	watch := flag.Bool("watch", false, "Keep running and start a batch every interval")
	interval := flag.Duration("interval", time.Minute, "Time between batches in watch mode")
	maxJobs := flag.Int("max-jobs", 0, "Override worker.max_jobs for this process")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	appLogger.SetLevel(cfg.Log.Level)
	appLogger.SetFormat(cfg.Log.Format)
	if *maxJobs > 0 {
		cfg.Worker.MaxJobs = *maxJobs
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.SetComponent(appLogger.WithContext(ctx), "worker")

	worker, err := service.NewWorker(ctx, cfg, db)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize embedding worker")
	}
	defer worker.Close()

	// Handle graceful shutdown. The runner finishes the job in flight and
	// stops before claiming the next one.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, stopping after the current job...")
		cancel()
	}()

	if !*watch {
		summary, err := worker.Runner.Run(ctx)
		logSummary(appLogger, summary)
		if err != nil && ctx.Err() == nil {
			appLogger.WithError(err).Error("Embed run failed")
			worker.Close()
			logger.Sync()
			os.Exit(1)
		}
		return
	}

	appLogger.WithField("interval", interval.String()).Info("Watching job queue")
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		summary, err := worker.Runner.Run(ctx)
		logSummary(appLogger, summary)
		if err != nil && ctx.Err() == nil {
			appLogger.WithError(err).Error("Embed run failed")
		}

		select {
		case <-ctx.Done():
			appLogger.Info("Worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func logSummary(log *logger.Logger, summary *service.RunSummary) {
	if summary == nil {
		return
	}
	log.WithFields(logger.Fields{
		"processed":            summary.Processed,
		"done":                 summary.Done,
		"errored":              summary.Errored,
		logger.FieldDurationMs: summary.DurationMs,
	}).Info("Embed run summary")
}
