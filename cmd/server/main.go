package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/config"
	"github.com/srinumudili/CodeMate/internal/logging"
	"github.com/srinumudili/CodeMate/internal/server"
)

func main() {
	// 1. Config & Flags
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("❌ Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 2. Storage, broker, services and routes
	app, err := server.New(ctx, cfg, logger, reg)
	if err != nil {
		logger.Fatal("❌ Failed to initialize", zap.Error(err))
	}
	defer app.Close()

	// 3. Start the Hub Engine
	hubDone := make(chan error, 1)
	go func() { hubDone <- app.Run(ctx) }()

	srv := &http.Server{
		Addr:    cfg.HTTPAddress,
		Handler: app.Router,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 Server starting", zap.String("addr", cfg.HTTPAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("❌ HTTP server failed", zap.Error(err))
		stop()
	case err := <-hubDone:
		if err != nil {
			logger.Error("❌ Hub stopped", zap.Error(err))
		}
		stop()
	}

	logger.Info("🛑 Shutting down", zap.Duration("grace", cfg.ShutdownGracePeriod))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	if err := app.Drain(shutdownCtx); err != nil {
		logger.Warn("realtime sessions still open", zap.Error(err))
	}
}
