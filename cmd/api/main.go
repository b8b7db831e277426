package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vspcbal/internal/api"
	"vspcbal/internal/buildinfo"
	"vspcbal/internal/config"
	"vspcbal/internal/logger"
	"vspcbal/internal/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup(logger.Options{}).Error("config_load_failed", "err", err)
		os.Exit(1)
	}
	log := logger.Setup(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	metrics.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvDeps, err := api.NewServer(ctx, cfg, log)
	if err != nil {
		log.Error("server_init_failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = srvDeps.Close() }()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	// Start webhook worker
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		srvDeps.NewWebhookWorker().Run(workerCtx)
	}()
	go srvDeps.RunLimiterSweeper(workerCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("api_listening", "addr", srv.Addr, "store", cfg.Store.Driver, "version", buildinfo.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_requested")
	case err := <-errCh:
		if err != nil {
			log.Error("server_error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown_incomplete", "err", err)
	}
	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn("webhook_worker_stop_timeout")
	}
	log.Info("api_stopped")
}
