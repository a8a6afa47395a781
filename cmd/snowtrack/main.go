package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"snowtrack/internal/backend"
	"snowtrack/internal/cli"
	apphttp "snowtrack/internal/http"
	"snowtrack/internal/log"
	"snowtrack/internal/services"
	"snowtrack/internal/session"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()

	bootLogger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(bootLogger)
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	factory, err := backend.NewFactory(backendCfg, logger.WithComponent(log.ComponentBackend).Logger)
	if err != nil {
		logger.Error("Failed to create store factory", log.FieldError, err)
		os.Exit(1)
	}

	publisher, err := cli.InitPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to AMQP broker", log.FieldError, err)
		os.Exit(1)
	}

	manager := session.NewManager(factory, cfg.SessionTTL, cfg.SessionCleanupInterval, logger)
	tracker := services.NewTrackerService(publisher, logger)

	srv := apphttp.NewServer(":"+cfg.Port, tracker, manager, apphttp.Options{
		SessionSecret:      cfg.SessionSecret,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MoMCacheSize:       cfg.MoMCacheSize,
		Logger:             logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting snowtrack server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"session_ttl", cfg.SessionTTL.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		manager.Close()
		if cerr := tracker.Close(); cerr != nil {
			logger.Warn("Failed to close event publisher", log.FieldError, cerr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
