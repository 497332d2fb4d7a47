package presence

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

type memoryEntry struct {
	rec     domain.PresenceRecord
	expires time.Time
}

// MemoryStore is a single-process Store driven by an injectable clock.
type MemoryStore struct {
	clock  clock.Clock
	mu     sync.Mutex
	scopes map[string]map[string]memoryEntry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{clock: c, scopes: make(map[string]map[string]memoryEntry)}
}

func (s *MemoryStore) Upsert(_ context.Context, rec domain.PresenceRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Scope.Key()
	if s.scopes[key] == nil {
		s.scopes[key] = make(map[string]memoryEntry)
	}
	s.scopes[key][rec.UserID] = memoryEntry{rec: rec, expires: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, scope domain.Scope, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes[scope.Key()], userID)
	return nil
}

func (s *MemoryStore) List(_ context.Context, scope domain.Scope) ([]domain.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	entries := s.scopes[scope.Key()]
	out := make([]domain.PresenceRecord, 0, len(entries))
	for userID, entry := range entries {
		if now.After(entry.expires) {
			delete(entries, userID)
			continue
		}
		out = append(out, entry.rec)
	}
	return out, nil
}
