// Package cli provides common CLI initialization utilities shared by the
// snowtrack server and worker binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"snowtrack/internal/config"
	"snowtrack/internal/events"
	"snowtrack/internal/log"
)

// SetupLogger initializes structured logging at the given level and makes it
// the process default.
func SetupLogger(level, component string) *log.Logger {
	logger := log.NewWithLevel(level, component)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitPublisher connects to the broker when AMQP_URL is set. Without it
// events are discarded.
func InitPublisher(ctx context.Context, cfg *config.Config, logger *log.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL not set, record events are not published")
		return events.NopPublisher{}, nil
	}
	client, err := events.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to AMQP broker",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
