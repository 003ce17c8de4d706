package service

import (
	"context"
	"sync"

	"batisecure/internal/gdpr/store"
)

// Stores bundles every persistence interface the controller touches inside
// a transaction boundary.
type Stores struct {
	Consents  store.ConsentStore
	Requests  store.RightsStore
	Logs      store.ProcessingLogStore
	Retention store.RetentionStore
	Breaches  store.BreachStore
	Subjects  store.SubjectStore
}

// Tx runs fn against transactional stores. If fn returns an error, every
// mutation it made is discarded.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// MemoryTx adapts a MemoryStore to the Tx interface. Erasure transactions
// are serialized under one mutex and rolled back by restoring a snapshot of
// the subject state taken before fn runs.
type MemoryTx struct {
	mu    sync.Mutex
	store *store.MemoryStore
}

func NewMemoryTx(s *store.MemoryStore) *MemoryTx {
	return &MemoryTx{store: s}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.store.Snapshot()
	stores := Stores{
		Consents:  t.store,
		Requests:  t.store,
		Logs:      t.store,
		Retention: t.store,
		Breaches:  t.store,
		Subjects:  t.store,
	}
	if err := fn(ctx, stores); err != nil {
		t.store.Restore(snap)
		return err
	}
	return nil
}
