package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"snowtrack/internal/core"
	"snowtrack/internal/log"
	"snowtrack/internal/report"
	"snowtrack/internal/services"
	"snowtrack/internal/session"
	"snowtrack/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fileFactory hands every session a store seeded from the records file.
type fileFactory struct {
	records []core.Record
}

func (f fileFactory) CreateStore(_ context.Context, _ string) (store.Store, error) {
	return report.NewStore(f.records)
}

// openSession loads the records file into a one-off session.
func openSession(ctx context.Context) (*services.TrackerService, *session.Session, func(), error) {
	logger := log.NewWithLevel(logLevel, log.ComponentReport)

	records, err := report.LoadFile(recordsFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading %s: %w", recordsFile, err)
	}
	logger.Debug("Loaded records", "file", recordsFile, log.FieldCount, len(records))

	manager := session.NewManager(fileFactory{records: records}, time.Hour, time.Hour, logger)
	sess, err := manager.GetOrCreate(ctx, "")
	if err != nil {
		manager.Close()
		return nil, nil, nil, err
	}
	return services.NewTrackerService(nil, logger), sess, manager.Close, nil
}
