// Package session owns the per-visitor record stores. Every browser session
// gets its own store that nobody else can see, dropped after inactivity.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"snowtrack/internal/backend"
	"snowtrack/internal/log"
	"snowtrack/internal/store"
)

// Session is the context object passed to every tracker command.
type Session struct {
	ID        string
	CreatedAt time.Time

	store   store.Store
	version atomic.Uint64
}

// Store returns the session's record store.
func (s *Session) Store() store.Store {
	return s.store
}

// Version changes whenever the session's records change.
func (s *Session) Version() uint64 {
	return s.version.Load()
}

// Changed records a mutation and returns the new version.
func (s *Session) Changed() uint64 {
	return s.version.Add(1)
}

// Manager creates, looks up and expires sessions.
type Manager struct {
	factory backend.Factory
	items   *gocache.Cache
	logger  *log.Logger

	createMu sync.Mutex

	mu    sync.Mutex
	onEnd []func(id string)
}

// NewManager returns a manager whose sessions expire after ttl without use.
// Expired sessions are closed by a janitor running every cleanup interval.
func NewManager(factory backend.Factory, ttl, cleanup time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	m := &Manager{
		factory: factory,
		items:   gocache.New(ttl, cleanup),
		logger:  logger.WithComponent(log.ComponentSession),
	}
	m.items.OnEvicted(m.evicted)
	return m
}

// OnEnd registers a callback run after a session is closed.
func (m *Manager) OnEnd(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnd = append(m.onEnd, fn)
}

// Get returns a live session and extends its lifetime.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	v, ok := m.items.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	m.items.SetDefault(id, sess)
	return sess, true
}

// GetOrCreate returns the session for id, creating a fresh one with an empty
// store when id is unknown or expired. An empty id gets a newly generated one.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if sess, ok := m.Get(id); ok {
		return sess, nil
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	// Another request may have created it meanwhile
	if sess, ok := m.Get(id); ok {
		return sess, nil
	}
	if id == "" {
		id = uuid.NewString()
	} else {
		// Closes a stale entry the janitor has not reached yet
		m.items.Delete(id)
	}

	st, err := m.factory.CreateStore(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: id, CreatedAt: time.Now().UTC(), store: st}
	m.items.SetDefault(id, sess)

	m.logger.InfoContext(ctx, "Session started", log.FieldSessionID, id)
	return sess, nil
}

// Delete closes and forgets the session. Unknown ids are ignored.
func (m *Manager) Delete(id string) {
	m.items.Delete(id)
}

// Count returns the number of tracked sessions, including expired ones the
// janitor has not collected yet.
func (m *Manager) Count() int {
	return m.items.ItemCount()
}

// Close ends every session.
func (m *Manager) Close() {
	m.items.DeleteExpired()
	for id := range m.items.Items() {
		m.items.Delete(id)
	}
}

func (m *Manager) evicted(id string, v any) {
	sess, ok := v.(*Session)
	if !ok {
		return
	}
	if err := sess.store.Close(); err != nil {
		m.logger.Warn("Failed to close session store", log.FieldSessionID, id, log.FieldError, err)
	}
	m.logger.Info("Session ended", log.FieldSessionID, id)

	m.mu.Lock()
	callbacks := append([]func(string){}, m.onEnd...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(id)
	}
}
