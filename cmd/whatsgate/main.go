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

	"whatsgate/internal/bus"
	"whatsgate/internal/config"
	"whatsgate/internal/constants"
	"whatsgate/internal/database"
	"whatsgate/internal/metrics"
	"whatsgate/internal/models"
	"whatsgate/internal/retry"
	"whatsgate/internal/service"
	"whatsgate/internal/tracing"
	"whatsgate/pkg/media"
	"whatsgate/pkg/waproto"

	"github.com/sirupsen/logrus"
)

var (
	// Version information, set at build time via -ldflags.
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.WithError(err).Fatal("Service terminated")
	}
}

func run(ctx context.Context) error {
	configPath := flag.String("config", "config.json", "path to configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("whatsgate %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		return nil
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if *verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version": Version,
		"session": cfg.Transport.SessionName,
	}).Info("Starting whatsgate")

	if cfg.Tracing == (models.TracingConfig{}) {
		cfg.Tracing = tracing.DefaultConfig()
	}
	tracer := tracing.NewManager(cfg.Tracing, logger)
	if err := tracer.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("Tracing initialization failed, continuing without traces")
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("Tracing shutdown failed")
		}
	}()

	var db *database.Database
	backoff := retry.NewBackoff(retry.DefaultBackoffConfig())
	err = backoff.Retry(ctx, func() error {
		var openErr error
		db, openErr = database.New(cfg.Database.Path, cfg.Database.TablePrefix)
		return openErr
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	store, err := media.NewStore(cfg.Media, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}

	events := bus.New()
	registry := metrics.NewRegistry()
	transport := waproto.NewClient(cfg.Transport, logger)

	links := service.NewLinkNotifier(cfg.Crawler, logger)
	normalizer := service.NewNormalizer(db, store, links, events, registry, logger)
	conn := service.NewConnectionManager(transport, normalizer, events, registry, logger, cfg.Reconnect)
	engine := service.NewBroadcastEngine(db, conn, registry, logger)
	gateway := service.NewGateway(db, conn, engine, logger)

	if err := gateway.Connect(); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer func() { _ = conn.Close() }()

	server := NewServer(gateway, store, db, events, registry, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownSec*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Server shutdown incomplete")
	}

	logger.Info("Shutdown complete")
	return nil
}
