package backend

import (
	"context"

	"snowtrack/internal/store"
)

// Factory creates the record store owned by a single session
type Factory interface {
	// CreateStore returns a fresh, empty store for the given session
	CreateStore(ctx context.Context, sessionID string) (store.Store, error)
}

// Config holds configuration for store creation
type Config struct {
	Type BackendType
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
