package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"snowtrack/internal/core"
	ierr "snowtrack/internal/errors"
	"snowtrack/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps the active records and the archive of a session in memory.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	items    []core.Record
	archived []core.Record
}

func New() *Store {
	return &Store{now: time.Now}
}

// NewWithRecords seeds the store, appending each record as Insert would.
// Records with an empty customer are rejected.
func NewWithRecords(records []core.Record) (*Store, error) {
	s := New()
	for _, r := range records {
		if _, err := s.Insert(context.Background(), r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Insert appends the record. Nothing is stored when validation fails.
func (s *Store) Insert(_ context.Context, r core.Record) (core.Record, error) {
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r = r.WithIdentity(s.now())
	s.items = append(s.items, r)
	return r, nil
}

// Delete removes every record whose display identifier is listed. Records
// sharing customer and month share an identifier and go together.
func (s *Store) Delete(_ context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	set := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })

	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.items)
	s.items = lo.Reject(s.items, func(r core.Record, _ int) bool {
		_, ok := set[r.DisplayID()]
		return ok
	})
	return before - len(s.items), nil
}

func (s *Store) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, idx, found := lo.FindIndexOf(s.items, func(r core.Record) bool { return r.ID == id })
	if !found {
		return ierr.NewErrorf("record %s not found", id).
			WithHint("Record not found").
			Mark(ierr.ErrNotFound)
	}
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	return nil
}

// Records returns a copy of the active records in insertion order.
func (s *Store) Records(_ context.Context) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record{}, s.items...), nil
}

func (s *Store) Filter(_ context.Context, f core.Filter) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f.Apply(s.items), nil
}

func (s *Store) Customers(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Customers(s.items), nil
}

// Archive moves all records of customer, in order, to the end of the archive.
func (s *Store) Archive(_ context.Context, customer string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	isCustomer := func(r core.Record, _ int) bool { return r.Customer == customer }
	moved := lo.Filter(s.items, isCustomer)
	if len(moved) == 0 {
		return 0, nil
	}
	s.items = lo.Reject(s.items, isCustomer)
	s.archived = append(s.archived, moved...)
	return len(moved), nil
}

func (s *Store) Archived(_ context.Context) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record{}, s.archived...), nil
}

// Close drops all data held by the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.archived = nil
	return nil
}
