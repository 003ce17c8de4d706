package events

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore keeps security events in memory, ordered by insertion.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewInMemoryStore constructs an empty in-memory event store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListSince(_ context.Context, since time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountByRiskLevel(_ context.Context, since time.Time) (map[RiskLevel]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[RiskLevel]int)
	for _, e := range s.entries {
		if !e.Timestamp.Before(since) {
			counts[e.RiskLevel]++
		}
	}
	return counts, nil
}

// All returns a copy of every stored entry, oldest first. Test helper.
func (s *InMemoryStore) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries...)
}
