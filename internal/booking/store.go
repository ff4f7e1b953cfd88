package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"edengolf/internal/holds"
	"edengolf/internal/models"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("booking session not found")

// DefaultSessionTimeout is how long an idle session lives.
const DefaultSessionTimeout = 30 * time.Minute

// StoreFactory returns the hold store of one session.
type StoreFactory func(sessionID string) holds.Store

// SessionStore manages booking sessions.
type SessionStore struct {
	deps      Dependencies
	newStore  StoreFactory
	namespace string
	timeout   time.Duration

	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionStore creates a new session store. A nil factory keeps holds in memory.
func NewSessionStore(deps Dependencies, newStore StoreFactory, namespace string, timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if newStore == nil {
		newStore = func(string) holds.Store { return holds.NewMemoryStore() }
	}
	return &SessionStore{
		deps:      deps,
		newStore:  newStore,
		namespace: namespace,
		timeout:   timeout,
		sessions:  make(map[string]*Session),
	}
}

// Create opens a new session with a random id.
func (ss *SessionStore) Create() *Session {
	id := uuid.NewString()
	ledger := holds.NewLedger(ss.newStore(id), ss.namespace, ss.deps.Logger)
	session := NewSession(id, ss.deps, ledger)

	ss.mu.Lock()
	ss.sessions[id] = session
	ss.mu.Unlock()
	return session
}

// Get returns a live session.
func (ss *SessionStore) Get(id string) (*Session, error) {
	ss.mu.RLock()
	session, ok := ss.sessions[id]
	ss.mu.RUnlock()
	if !ok || session.IsExpired(ss.timeout) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete closes and removes a session.
func (ss *SessionStore) Delete(ctx context.Context, id string) error {
	ss.mu.Lock()
	session, ok := ss.sessions[id]
	delete(ss.sessions, id)
	ss.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return session.Close(ctx)
}

// Cleanup closes expired sessions and returns how many were removed. It also drops
// the availability remembered for days that are over.
func (ss *SessionStore) Cleanup(ctx context.Context) int {
	ss.forgetPastDays()

	ss.mu.Lock()
	var expired []*Session
	for id, session := range ss.sessions {
		if session.IsExpired(ss.timeout) {
			expired = append(expired, session)
			delete(ss.sessions, id)
		}
	}
	ss.mu.Unlock()

	for _, session := range expired {
		_ = session.Close(ctx)
	}
	return len(expired)
}

// CloseAll closes every session, e.g. on shutdown.
func (ss *SessionStore) CloseAll(ctx context.Context) {
	ss.mu.Lock()
	sessions := ss.sessions
	ss.sessions = make(map[string]*Session)
	ss.mu.Unlock()

	for _, session := range sessions {
		_ = session.Close(ctx)
	}
}

// Len returns the number of open sessions.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// RunCleanup closes expired sessions every interval until ctx is done.
func (ss *SessionStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ss.Cleanup(ctx); n > 0 && ss.deps.Logger != nil {
				ss.deps.Logger.Debug().Int("sessions", n).Msg("expired booking sessions closed")
			}
		}
	}
}

func (ss *SessionStore) forgetPastDays() {
	if ss.deps.Reconciler == nil {
		return
	}
	loc := ss.deps.Location
	if loc == nil {
		loc = time.Local
	}
	today := time.Now().In(loc).Format(models.DateLayout)
	if n := ss.deps.Reconciler.ForgetBefore(today); n > 0 && ss.deps.Logger != nil {
		ss.deps.Logger.Debug().Int("entries", n).Str("before", today).Msg("forgot availability of past days")
	}
}
