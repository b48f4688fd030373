package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pingit-io/pingit/internal/config"
	"github.com/pingit-io/pingit/internal/engine"
	"github.com/pingit-io/pingit/internal/httpapi"
	"github.com/pingit-io/pingit/internal/logging"
	"github.com/pingit-io/pingit/internal/repo"
	"github.com/pingit-io/pingit/internal/repo/memory"
	"github.com/pingit-io/pingit/internal/repo/postgres"
	"github.com/pingit-io/pingit/internal/repo/sqlite"
	"github.com/pingit-io/pingit/internal/scheduler"
	"github.com/pingit-io/pingit/internal/writer"
)

func main() {
	configPath := flag.String("config", "pingit-config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(logging.Options{
		Dir:     cfg.Logging.Dir,
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_error", zap.Error(err))
	}

	eng := engine.New(store, engine.Options{
		Targets:       cfg.DomainTargets(),
		ReportEvery:   cfg.Reporting.Interval,
		DeliveryGrace: cfg.Ping.DeliveryGrace.Std(),
		Overrun:       scheduler.OverrunPolicy(cfg.Ping.Overrun),
		Privileged:    cfg.Ping.Privileged,
		Writer: writer.Config{
			QueueSize:     cfg.Storage.QueueSize,
			BatchSize:     cfg.Storage.BatchSize,
			FlushInterval: cfg.Storage.FlushInterval.Std(),
			RetryAttempts: cfg.Storage.RetryAttempts,
			RetryBackoff:  cfg.Storage.RetryBackoff.Std(),
			ShutdownGrace: cfg.Storage.ShutdownGrace.Std(),
		},
	}, logger)
	eng.Start(ctx)

	api := httpapi.NewServer(logger, eng, eng.Metrics(), store)
	api.RateLimit = cfg.API.RateLimit
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Server.Addr))
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_serve_error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)

	eng.Stop()
	err = multierr.Append(err, store.Close())
	if err != nil {
		logger.Warn("shutdown_errors", zap.Error(err))
	}
	logger.Info("service_stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repo.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return postgres.New(ctx, cfg.Storage.DSN, logger)
	case "memory":
		return memory.New(), nil
	default:
		return sqlite.New(cfg.Storage.Path, logger)
	}
}
