package services

import (
	"context"
	"fmt"
	"strings"

	"snowtrack/internal/core"
	ierr "snowtrack/internal/errors"
	"snowtrack/internal/events"
	"snowtrack/internal/log"
	"snowtrack/internal/metrics"
	"snowtrack/internal/session"
)

// TrackerService runs the record commands against a session's store and
// announces successful mutations as events.
type TrackerService struct {
	publisher events.Publisher
	logger    *log.Logger
	audit     *log.StructuredLogger
}

func NewTrackerService(publisher events.Publisher, logger *log.Logger) *TrackerService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentTracker)
	return &TrackerService{
		publisher: publisher,
		logger:    logger,
		audit:     log.NewStructuredLogger(logger),
	}
}

// Insert appends a record to the session. A blank customer fails with a
// validation error and leaves the store untouched.
func (s *TrackerService) Insert(ctx context.Context, sess *session.Session, r core.Record) (core.Record, error) {
	saved, err := sess.Store().Insert(ctx, r)
	if err != nil {
		return core.Record{}, err
	}
	sess.Changed()

	s.audit.LogRecordInserted(ctx, sess.ID, saved.ID, saved.DisplayID(),
		saved.Customer, saved.Month.String(), saved.Consumption.String())

	ev := events.NewEvent(events.RecordInserted, sess.ID)
	ev.Customer = saved.Customer
	ev.Month = saved.Month.String()
	ev.RecordIDs = []string{saved.ID}
	ev.Count = 1
	s.publish(ctx, ev)

	return saved, nil
}

// Delete removes the records matching the given display identifiers.
func (s *TrackerService) Delete(ctx context.Context, sess *session.Session, ids []string) (int, error) {
	n, err := sess.Store().Delete(ctx, ids)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	sess.Changed()

	s.audit.LogRecordsRemoved(ctx, sess.ID, log.OpDelete, n, nil)

	ev := events.NewEvent(events.RecordsDeleted, sess.ID)
	ev.RecordIDs = ids
	ev.Count = n
	s.publish(ctx, ev)

	return n, nil
}

// DeleteByID removes exactly one record by its unique identifier.
func (s *TrackerService) DeleteByID(ctx context.Context, sess *session.Session, id string) error {
	if err := sess.Store().DeleteByID(ctx, id); err != nil {
		return err
	}
	sess.Changed()

	s.audit.LogRecordsRemoved(ctx, sess.ID, log.OpDelete, 1, log.NewFields().WithRecord(id, "", "", "", ""))

	ev := events.NewEvent(events.RecordsDeleted, sess.ID)
	ev.RecordIDs = []string{id}
	ev.Count = 1
	s.publish(ctx, ev)

	return nil
}

// Records returns the active records matching f in insertion order.
func (s *TrackerService) Records(ctx context.Context, sess *session.Session, f core.Filter) ([]core.Record, error) {
	if f.IsEmpty() {
		return sess.Store().Records(ctx)
	}
	return sess.Store().Filter(ctx, f)
}

func (s *TrackerService) Customers(ctx context.Context, sess *session.Session) ([]string, error) {
	return sess.Store().Customers(ctx)
}

// Archive marks the customer's project complete, moving its records out of
// the active set. Unknown customers are a no-op.
func (s *TrackerService) Archive(ctx context.Context, sess *session.Session, customer string) (int, error) {
	if strings.TrimSpace(customer) == "" {
		return 0, ierr.NewError("customer is required").
			WithHint("Select a customer to complete").
			Mark(ierr.ErrValidation)
	}

	n, err := sess.Store().Archive(ctx, customer)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	sess.Changed()

	s.audit.LogRecordsRemoved(ctx, sess.ID, log.OpArchive, n, log.NewFields().WithRecord("", "", customer, "", ""))

	ev := events.NewEvent(events.CustomerArchived, sess.ID)
	ev.Customer = customer
	ev.Count = n
	s.publish(ctx, ev)

	return n, nil
}

func (s *TrackerService) Archived(ctx context.Context, sess *session.Session) ([]core.Record, error) {
	return sess.Store().Archived(ctx)
}

// MoM filters the active records and computes their month-over-month change.
func (s *TrackerService) MoM(ctx context.Context, sess *session.Session, f core.Filter, mode metrics.Mode) ([]metrics.Row, error) {
	records, err := s.Records(ctx, sess, f)
	if err != nil {
		return nil, err
	}
	rows := metrics.Compute(records, mode)

	s.logger.DebugContext(ctx, "Computed MoM view",
		log.FieldSessionID, sess.ID,
		log.FieldMode, string(mode),
		log.FieldCount, len(rows))

	return rows, nil
}

// Series returns the MoM rows grouped per customer for charting.
func (s *TrackerService) Series(ctx context.Context, sess *session.Session, f core.Filter, mode metrics.Mode) ([]metrics.Series, error) {
	rows, err := s.MoM(ctx, sess, f, mode)
	if err != nil {
		return nil, err
	}
	return metrics.ChartSeries(rows), nil
}

// publish never fails the command; the mutation already happened.
func (s *TrackerService) publish(ctx context.Context, ev *events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.audit.LogError(ctx, "Failed to publish event", err, log.ComponentAMQP, log.OpPublish,
			log.NewFields().WithSessionID(ev.SessionID))
	}
}

// Close releases the event publisher.
func (s *TrackerService) Close() error {
	if err := s.publisher.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	return nil
}
