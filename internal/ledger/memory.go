package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store implementation. It is the default
// backing for non-production use and for tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

func newMemoryStore() Store { return NewMemoryStore() }

func (s *MemoryStore) Insert(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	c := *run
	s.runs[run.ID] = &c
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("updating run %s: %w", run.ID, ErrRunNotFound)
	}
	c := *run
	s.runs[run.ID] = &c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	c := *run
	return &c, nil
}

func (s *MemoryStore) SumCosts(ctx context.Context, userID, orgID string, since time.Time) (CostTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals CostTotals
	for _, run := range s.runs {
		if run.StartedAt.Before(since) {
			continue
		}
		totals.GlobalCents += run.CostCents
		if userID != "" && run.UserID == userID {
			totals.UserCents += run.CostCents
		}
		if orgID != "" && run.OrganizationID == orgID {
			totals.OrgCents += run.CostCents
		}
	}
	return totals, nil
}

func (s *MemoryStore) Close() error { return nil }
