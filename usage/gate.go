package usage

import (
	"context"
	"time"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/id"
)

// Gate applies tier limits on top of a Store.
type Gate struct {
	store  Store
	limits Limits
}

// NewGate creates a gate over store with the given limits.
func NewGate(store Store, limits Limits) *Gate {
	return &Gate{store: store, limits: limits}
}

// Limits returns the gate's quota table.
func (g *Gate) Limits() Limits { return g.limits }

// Check reports current usage without changing it.
func (g *Gate) Check(ctx context.Context, businessID id.BusinessID, tier business.Tier, now time.Time) (*Snapshot, error) {
	period := Period(now)
	count, err := g.store.GetUsage(ctx, businessID, period)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(businessID, period, tier, count, g.limits.For(tier)), nil
}

// Reserve consumes one send for the current period. When the quota is
// exhausted it returns the unchanged snapshot and false.
func (g *Gate) Reserve(ctx context.Context, businessID id.BusinessID, tier business.Tier, now time.Time) (*Snapshot, bool, error) {
	period := Period(now)
	limit := g.limits.For(tier)
	count, ok, err := g.store.IncrementUsage(ctx, businessID, period, limit)
	if err != nil {
		return nil, false, err
	}
	return NewSnapshot(businessID, period, tier, count, limit), ok, nil
}

// Release returns a reservation made by Reserve in the same period.
func (g *Gate) Release(ctx context.Context, businessID id.BusinessID, period string) error {
	return g.store.ReleaseUsage(ctx, businessID, period)
}
