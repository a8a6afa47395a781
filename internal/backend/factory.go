package backend

import (
	"context"
	"fmt"
	"log/slog"

	"snowtrack/internal/store"
	"snowtrack/internal/store/memory"
	"snowtrack/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	config Config
	logger *slog.Logger
}

// NewFactory creates a new store factory for the configured backend
func NewFactory(config Config, logger *slog.Logger) (Factory, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		config: config,
		logger: logger,
	}, nil
}

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, sessionID string) (store.Store, error) {
	switch f.config.Type {
	case MemoryBackend:
		f.logger.DebugContext(ctx, "Created memory store", "session_id", sessionID)
		return memory.New(), nil
	case SQLiteBackend:
		s, err := sqlite.New(sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		f.logger.DebugContext(ctx, "Created sqlite store", "session_id", sessionID)
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", f.config.Type)
	}
}
