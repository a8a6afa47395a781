package worker

import (
	"context"
	"sync"
	"time"

	ierr "snowtrack/internal/errors"
	"snowtrack/internal/events"
	"snowtrack/internal/log"
)

// Stats summarizes the events a worker has handled.
type Stats struct {
	Inserted  int
	Deleted   int
	Archived  int
	Sessions  int
	LastEvent time.Time
}

// EventWorker tails record events and keeps running totals per session.
type EventWorker struct {
	logger *log.Logger

	mu       sync.Mutex
	stats    Stats
	sessions map[string]time.Time
}

func NewEventWorker(logger *log.Logger) *EventWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &EventWorker{
		logger:   logger.WithComponent(log.ComponentWorker),
		sessions: make(map[string]time.Time),
	}
}

// HandleEvent records a single event. Unknown types fail as invalid
// operations, which the consumer drops instead of requeueing.
func (w *EventWorker) HandleEvent(ctx context.Context, ev *events.Event) error {
	if ev == nil {
		return ierr.NewError("nil event").Mark(ierr.ErrInvalidOperation)
	}

	w.mu.Lock()
	switch ev.Type {
	case events.RecordInserted:
		w.stats.Inserted += ev.Count
	case events.RecordsDeleted:
		w.stats.Deleted += ev.Count
	case events.CustomerArchived:
		w.stats.Archived += ev.Count
	default:
		w.mu.Unlock()
		return ierr.NewErrorf("unknown event type %q", ev.Type).
			WithHint("Unsupported event type").
			Mark(ierr.ErrInvalidOperation)
	}
	w.sessions[ev.SessionID] = ev.Timestamp
	if ev.Timestamp.After(w.stats.LastEvent) {
		w.stats.LastEvent = ev.Timestamp
	}
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Record event",
		log.FieldEventType, string(ev.Type),
		log.FieldSessionID, ev.SessionID,
		log.FieldCustomer, ev.Customer,
		log.FieldMonth, ev.Month,
		log.FieldCount, ev.Count)
	return nil
}

// Stats returns a snapshot of the running totals.
func (w *EventWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Sessions = len(w.sessions)
	return s
}

// ForgetIdle drops sessions without events since cutoff and returns how many
// were dropped.
func (w *EventWorker) ForgetIdle(cutoff time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for id, last := range w.sessions {
		if last.Before(cutoff) {
			delete(w.sessions, id)
			n++
		}
	}
	return n
}

// ReportLoop logs the totals every interval until ctx is done.
func (w *EventWorker) ReportLoop(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dropped := w.ForgetIdle(now.Add(-idle))
			s := w.Stats()
			w.logger.Info("Event totals",
				"inserted", s.Inserted,
				"deleted", s.Deleted,
				"archived", s.Archived,
				"active_sessions", s.Sessions,
				"idle_sessions_dropped", dropped)
		}
	}
}
