package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apk-inspect/apk-inspect-go/internal/api"
	"github.com/apk-inspect/apk-inspect-go/internal/apk"
	"github.com/apk-inspect/apk-inspect-go/internal/config"
	"github.com/apk-inspect/apk-inspect-go/internal/repository"
	"github.com/apk-inspect/apk-inspect-go/internal/watcher"
	"github.com/apk-inspect/apk-inspect-go/internal/worker"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Log)

	db, err := repository.NewDatabase(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	repo := repository.NewReportRepository(db)

	analyzer := apk.NewAnalyzer(logger)
	opts := apk.Options{StringProcessing: cfg.Analysis.StringProcessing}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := worker.NewPool(logger, analyzer, repo, opts, cfg.Worker.QueueSize)
	pool.Start(ctx, cfg.Worker.Concurrency)

	if cfg.Watcher.Enabled {
		fw := watcher.NewFileWatcher(logger, pool, cfg.Watcher.WatchDir, cfg.Watcher.Pattern)
		go func() {
			if err := fw.Start(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("File watcher exited")
			}
		}()
	}

	router := api.NewRouter(logger, analyzer, pool, repo, cfg.Server.Mode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown failed")
	}
	pool.Stop()
	logger.Info("Server stopped")
}
