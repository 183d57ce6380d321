package session

import (
	"context"
	"sync"
	"time"

	"github.com/NicolasHaas/gochat/pkg/model"
)

// MemoryStore keeps sessions in process memory. It is suitable for a single
// front-end process and for tests.
type MemoryStore struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	entries map[string]memoryEntry
}

type memoryEntry struct {
	sess      model.Session
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore. A non-positive ttl selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return NewMemoryStoreWithClock(ttl, time.Now)
}

// NewMemoryStoreWithClock creates a MemoryStore with a custom clock.
func NewMemoryStoreWithClock(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{ttl: ttl, now: now, entries: make(map[string]memoryEntry)}
}

// Load returns a copy of the session stored under key.
func (s *MemoryStore) Load(_ context.Context, key string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	now := s.now()
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	e.expiresAt = now.Add(s.ttl)
	s.entries[key] = e

	sess := e.sess
	sess.Key = key
	return &sess, nil
}

// Save stores a copy of sess under its key.
func (s *MemoryStore) Save(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sess.Key] = memoryEntry{sess: *sess, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Delete removes the session stored under key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for key, e := range s.entries {
		if now.Before(e.expiresAt) {
			n++
		} else {
			delete(s.entries, key)
		}
	}
	return n
}
