package session

import (
	"context"
	"errors"
	"image-board-backend/internal/domain"
	"sync"
	"time"
)

type memoryEntry struct {
	session   domain.Session
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is the single-instance fallback used when Redis is not configured.
// Save sweeps expired entries at most once per TTL; Purge does it on demand.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]memoryEntry),
		ttl:       ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*domain.Session, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionAbsent
	}
	if e.expired(s.now()) {
		s.mu.Lock()
		// A concurrent Save may have replaced the entry since the read lock
		if cur, ok := s.entries[key]; ok && cur.expired(s.now()) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, domain.ErrSessionAbsent
	}
	sess := e.session
	return &sess, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, sess *domain.Session) error {
	if key == "" || sess == nil {
		return errors.New("session key and value are required")
	}
	now := s.now()
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl)
	}
	s.mu.Lock()
	if s.ttl > 0 && now.Sub(s.lastSweep) >= s.ttl {
		s.purgeLocked(now)
	}
	s.entries[key] = memoryEntry{session: *sess, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Purge drops every expired session and returns how many were removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.now())
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) purgeLocked(now time.Time) int {
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	s.lastSweep = now
	return n
}
