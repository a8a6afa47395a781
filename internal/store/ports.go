package store

import (
	"context"

	"snowtrack/internal/core"
)

// Ports implemented by every session store backend.
type (
	RecordWriter interface {
		// Insert appends a record and returns it with identity assigned.
		Insert(ctx context.Context, r core.Record) (core.Record, error)
	}

	RecordRemover interface {
		// Delete removes every active record whose display identifier is in ids.
		Delete(ctx context.Context, ids []string) (int, error)
		// DeleteByID removes the single record with the given unique ID.
		DeleteByID(ctx context.Context, id string) error
	}

	RecordReader interface {
		Records(ctx context.Context) ([]core.Record, error)
		Filter(ctx context.Context, f core.Filter) ([]core.Record, error)
		Customers(ctx context.Context) ([]string, error)
	}

	// Archiver moves completed customers out of the active set.
	Archiver interface {
		Archive(ctx context.Context, customer string) (int, error)
		Archived(ctx context.Context) ([]core.Record, error)
	}

	// Store is the full record store of one session.
	Store interface {
		RecordWriter
		RecordRemover
		RecordReader
		Archiver
		Close() error
	}
)
