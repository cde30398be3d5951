package encounter

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned when a session ID is not registered.
var ErrSessionNotFound = errors.New("encounter: session not found")

// Factory builds the encounter for a new session.
type Factory func(sessionID string) (*Encounter, error)

// Session is one registered encounter. All access to the encounter goes
// through Do, which serializes callers.
type Session struct {
	ID      string
	Created time.Time

	mu   sync.Mutex
	enc  *Encounter
	idle *idleTimer
}

// Do runs fn with exclusive access to the session's encounter and counts as
// activity for idle eviction.
//
// Precondition: fn must not retain the encounter after returning.
func (s *Session) Do(fn func(e *Encounter)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil {
		s.idle.Touch()
	}
	fn(s.enc)
}

// Registry manages independent encounters keyed by session ID.
// All methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	factory     Factory
	idleTimeout time.Duration
	logger      *zap.Logger
}

// NewRegistry creates an empty Registry. Sessions untouched for idleTimeout
// are evicted; idleTimeout <= 0 disables eviction.
//
// Precondition: factory must not be nil. A nil logger is a no-op.
// Postcondition: Returns a non-nil Registry ready for use.
func NewRegistry(factory Factory, idleTimeout time.Duration, logger *zap.Logger) *Registry {
	if factory == nil {
		panic("encounter.NewRegistry: factory must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		factory:     factory,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
}

// Create builds a new encounter under a fresh random session ID.
//
// Postcondition: Returns the registered session, or the factory's error with
// nothing registered.
func (r *Registry) Create() (*Session, error) {
	id := uuid.NewString()
	// The factory may be slow; other sessions stay reachable while it runs.
	enc, err := r.factory(id)
	if err != nil {
		return nil, fmt.Errorf("encounter: creating session: %w", err)
	}
	s := &Session{ID: id, Created: time.Now(), enc: enc}

	r.mu.Lock()
	if r.idleTimeout > 0 {
		s.idle = newIdleTimer(r.idleTimeout, func() { r.evict(id) })
	}
	r.sessions[id] = s
	r.mu.Unlock()
	r.logger.Info("session created", zap.String("session", id))
	return s, nil
}

// Get returns the session registered under id.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Do runs fn against the encounter of session id.
//
// Postcondition: Returns ErrSessionNotFound without calling fn when id is unknown.
func (r *Registry) Do(id string, fn func(e *Encounter)) error {
	s, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Do(fn)
	return nil
}

// End removes session id and stops its idle timer.
//
// Postcondition: Returns false when id was not registered.
func (r *Registry) End(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if s.idle != nil {
		s.idle.Stop()
	}
	r.logger.Info("session ended", zap.String("session", id))
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the registered session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close ends every session.
func (r *Registry) Close() {
	for _, id := range r.IDs() {
		r.End(id)
	}
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		r.logger.Info("session evicted after idle timeout",
			zap.String("session", id),
			zap.Duration("timeout", r.idleTimeout),
		)
	}
}
