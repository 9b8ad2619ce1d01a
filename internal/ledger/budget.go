package ledger

import (
	"context"
	"time"

	"github.com/fairlease/modelgate/internal/domain"
)

// Limits are the daily spend caps in minor-currency units. Zero means the
// scope is uncapped.
type Limits struct {
	UserDailyCents   int64
	OrgDailyCents    int64
	GlobalDailyCents int64
}

// Usage is the current daily spend per scope, recomputed per check rather
// than cached incrementally.
type Usage struct {
	UserDailyCents   int64
	OrgDailyCents    int64
	GlobalDailyCents int64
}

// UsageFunc supplies the current usage for a user/org on a given day. The
// default implementation recomputes from the ledger store; products with
// an external metering pipeline inject their own.
type UsageFunc func(ctx context.Context, userID, orgID string, day time.Time) (Usage, error)

// CheckBudget compares usage against every configured limit before a run
// starts. A scope at or above its limit fails the check with a typed
// budget error naming the scope and the limit/current pair.
//
// This is a read-then-act check with no locking: concurrent requests can
// both pass and jointly exceed a limit. Accepted race.
func (s *Service) CheckBudget(ctx context.Context, userID, orgID string) error {
	if s.limits == (Limits{}) {
		return nil
	}

	usage, err := s.usageFn(ctx, userID, orgID, startOfDay(s.now()))
	if err != nil {
		return err
	}

	if s.limits.UserDailyCents > 0 && usage.UserDailyCents >= s.limits.UserDailyCents {
		return domain.ErrBudgetExceeded(domain.BudgetScopeUser, s.limits.UserDailyCents, usage.UserDailyCents)
	}
	if s.limits.OrgDailyCents > 0 && usage.OrgDailyCents >= s.limits.OrgDailyCents {
		return domain.ErrBudgetExceeded(domain.BudgetScopeOrg, s.limits.OrgDailyCents, usage.OrgDailyCents)
	}
	if s.limits.GlobalDailyCents > 0 && usage.GlobalDailyCents >= s.limits.GlobalDailyCents {
		return domain.ErrBudgetExceeded(domain.BudgetScopeGlobal, s.limits.GlobalDailyCents, usage.GlobalDailyCents)
	}
	return nil
}

// storeUsage recomputes daily usage from the ledger's own store.
func storeUsage(store Store) UsageFunc {
	return func(ctx context.Context, userID, orgID string, day time.Time) (Usage, error) {
		totals, err := store.SumCosts(ctx, userID, orgID, day)
		if err != nil {
			return Usage{}, err
		}
		return Usage{
			UserDailyCents:   totals.UserCents,
			OrgDailyCents:    totals.OrgCents,
			GlobalDailyCents: totals.GlobalCents,
		}, nil
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
