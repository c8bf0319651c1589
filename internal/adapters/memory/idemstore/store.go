package idemstore

import (
	"context"
	"sync"

	"github.com/harborline/idemgate/internal/idempotency"
	clockport "github.com/harborline/idemgate/internal/ports/out/clock"
)

// Store is an in-memory implementation of idemstore.Store.
// It is safe for concurrent use. Intended for tests and single-process
// local development; records do not survive a restart.
type Store struct {
	clock clockport.Clock

	mu sync.RWMutex
	m  map[idempotency.RequestKey]idempotency.Record
}

func NewStore(clock clockport.Clock) *Store {
	return &Store{
		clock: clock,
		m:     make(map[idempotency.RequestKey]idempotency.Record),
	}
}

func (s *Store) IsProcessed(ctx context.Context, key idempotency.RequestKey) (bool, *idempotency.Record, error) {
	_ = ctx
	now := s.clock.Now()

	s.mu.RLock()
	rec, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil, nil
	}
	if rec.IsExpired(now) {
		// Expired entries are dropped on read rather than swept.
		s.mu.Lock()
		if cur, ok := s.m[key]; ok && cur.IsExpired(now) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return false, nil, nil
	}
	return true, &rec, nil
}

func (s *Store) MarkProcessed(ctx context.Context, key idempotency.RequestKey, rec idempotency.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok && !cur.IsExpired(s.clock.Now()) {
		// Another writer already completed this key; keep its record.
		return nil
	}
	s.m[key] = rec
	return nil
}
