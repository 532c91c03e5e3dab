package tap

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL bounds how long a finalized cart stays payable.
const DefaultSessionTTL = 15 * time.Minute

// SessionStore holds finalized-but-unpaid carts keyed by an opaque session
// id. Create assigns the id and expiry; Consume atomically retrieves and
// removes a session, so it is the idempotency boundary for fulfillment:
// of any number of concurrent consumes for one id, exactly one succeeds.
type SessionStore interface {
	Create(session PaymentSession) PaymentSession
	Consume(sessionID string) (PaymentSession, bool)
}

// MemorySessionStore is the in-process SessionStore. Expiry is lazy: an
// expired session is dropped when consumed, no background sweep is needed
// for correctness.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]PaymentSession
}

// MemorySessionStoreOption customizes a MemorySessionStore.
type MemorySessionStoreOption func(*MemorySessionStore)

// SessionStoreWithClock provides deterministic time in tests.
func SessionStoreWithClock(now func() time.Time) MemorySessionStoreOption {
	return func(s *MemorySessionStore) {
		s.now = now
	}
}

// NewMemorySessionStore builds a store whose sessions live for ttl
// (DefaultSessionTTL when zero).
func NewMemorySessionStore(ttl time.Duration, opts ...MemorySessionStoreOption) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &MemorySessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]PaymentSession),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Create assigns a fresh session id and expiry and stores the session.
// Sessions are immutable once created; ids never collide, so there is no
// replace-on-conflict path.
func (s *MemorySessionStore) Create(session PaymentSession) PaymentSession {
	now := s.now()
	session.ID = uuid.NewString()
	session.CreatedAt = now
	session.ExpiresAt = now.Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return session
}

// Consume removes and returns the session in one step. A second call with
// the same id, or a call after expiry, reports false.
func (s *MemorySessionStore) Consume(sessionID string) (PaymentSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return PaymentSession{}, false
	}
	delete(s.sessions, sessionID)
	if s.now().After(session.ExpiresAt) {
		return PaymentSession{}, false
	}
	return session, true
}

// Len reports the number of live sessions, for memory-hygiene monitoring.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
