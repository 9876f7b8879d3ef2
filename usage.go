package tally

import (
	"context"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/usage"
)

// GetMonthlyUsage reports how many invoices the business sent this calendar
// month and whether it may send another.
func (t *Tally) GetMonthlyUsage(ctx context.Context, businessID id.BusinessID) (*usage.Snapshot, error) {
	b, err := t.loadBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return t.gate.Check(ctx, b.ID, b.Tier, t.Now())
}

// UsageLimits returns the quota table in effect.
func (t *Tally) UsageLimits() usage.Limits { return t.gate.Limits() }
