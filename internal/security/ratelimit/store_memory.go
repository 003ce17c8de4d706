package ratelimit

import (
	"context"
	"sync"
	"time"

	platformsync "batisecure/pkg/platform/sync"
)

// fixedWindow is the per-identifier counter state.
type fixedWindow struct {
	count   int
	resetAt time.Time
}

// InMemoryBucketStore implements BucketStore with a process-local map.
// Counters do not survive a restart; acceptable for single-instance
// deployments only.
type InMemoryBucketStore struct {
	mu      sync.RWMutex // guards the map itself
	keys    *platformsync.ShardedMutex
	buckets map[string]*fixedWindow
	now     func() time.Time
}

// NewInMemoryBucketStore creates a new in-memory fixed-window store.
func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{
		keys:    platformsync.NewShardedMutex(),
		buckets: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (s *InMemoryBucketStore) WithClock(now func() time.Time) *InMemoryBucketStore {
	s.now = now
	return s
}

func (s *InMemoryBucketStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Time, error) {
	// Per-key lock serializes the read-modify-write so concurrent requests
	// for the same identifier never undercount.
	s.keys.Lock(key)
	defer s.keys.Unlock(key)

	now := s.now()

	s.mu.RLock()
	bucket, ok := s.buckets[key]
	s.mu.RUnlock()

	if !ok {
		bucket = &fixedWindow{}
		s.mu.Lock()
		s.buckets[key] = bucket
		s.mu.Unlock()
	}

	if bucket.resetAt.IsZero() || now.After(bucket.resetAt) {
		bucket.count = 1
		bucket.resetAt = now.Add(window)
	} else {
		bucket.count++
	}
	return bucket.count, bucket.resetAt, nil
}

func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.keys.Lock(key)
	defer s.keys.Unlock(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

func (s *InMemoryBucketStore) CurrentCount(_ context.Context, key string) (int, error) {
	s.keys.Lock(key)
	defer s.keys.Unlock(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.buckets[key]
	if !ok || s.now().After(bucket.resetAt) {
		return 0, nil
	}
	return bucket.count, nil
}
