package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned by stores for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// CostTotals aggregates run cost per budget scope, in minor-currency
// units.
type CostTotals struct {
	UserCents   int64
	OrgCents    int64
	GlobalCents int64
}

// Store is the persistence boundary the ledger drives. Every state change
// flows through Insert or Update, so an in-memory map and a durable store
// see the identical mutation sequence. The in-memory implementation is
// the default; durable stores are selected at composition time.
type Store interface {
	// Insert persists a new run. The id must be unused.
	Insert(ctx context.Context, run *Run) error

	// Update replaces the stored run with the given state.
	Update(ctx context.Context, run *Run) error

	// Get returns a copy of the run, or ErrRunNotFound.
	Get(ctx context.Context, id string) (*Run, error)

	// SumCosts totals the cost of runs started at or after since, for
	// the given user, org, and globally.
	SumCosts(ctx context.Context, userID, orgID string, since time.Time) (CostTotals, error)

	// Close releases store resources.
	Close() error
}
