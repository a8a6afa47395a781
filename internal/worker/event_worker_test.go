package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "snowtrack/internal/errors"
	"snowtrack/internal/events"
	"snowtrack/internal/log"
)

func newWorker() *EventWorker {
	return NewEventWorker(log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)}))
}

func event(t events.Type, session string, count int, at time.Time) *events.Event {
	ev := events.NewEvent(t, session)
	ev.Count = count
	ev.Timestamp = at
	return ev
}

func TestHandleEventTallies(t *testing.T) {
	w := newWorker()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, w.HandleEvent(ctx, event(events.RecordInserted, "s1", 1, base)))
	require.NoError(t, w.HandleEvent(ctx, event(events.RecordInserted, "s2", 1, base.Add(time.Minute))))
	require.NoError(t, w.HandleEvent(ctx, event(events.RecordsDeleted, "s1", 2, base.Add(2*time.Minute))))
	require.NoError(t, w.HandleEvent(ctx, event(events.CustomerArchived, "s2", 3, base.Add(3*time.Minute))))

	s := w.Stats()
	assert.Equal(t, 2, s.Inserted)
	assert.Equal(t, 2, s.Deleted)
	assert.Equal(t, 3, s.Archived)
	assert.Equal(t, 2, s.Sessions)
	assert.Equal(t, base.Add(3*time.Minute), s.LastEvent)
}

func TestHandleEventRejectsUnknownType(t *testing.T) {
	w := newWorker()

	err := w.HandleEvent(context.Background(), event("record.renamed", "s1", 1, time.Now()))
	assert.True(t, ierr.IsInvalidOperation(err))
	assert.True(t, ierr.IsInvalidOperation(w.HandleEvent(context.Background(), nil)))
	assert.Zero(t, w.Stats().Sessions)
}

func TestForgetIdle(t *testing.T) {
	w := newWorker()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, w.HandleEvent(ctx, event(events.RecordInserted, "old", 1, base)))
	require.NoError(t, w.HandleEvent(ctx, event(events.RecordInserted, "new", 1, base.Add(time.Hour))))

	assert.Equal(t, 1, w.ForgetIdle(base.Add(30*time.Minute)))
	assert.Equal(t, 1, w.Stats().Sessions)
	assert.Equal(t, 2, w.Stats().Inserted)
}
