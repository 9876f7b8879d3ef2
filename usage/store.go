package usage

import (
	"context"

	"github.com/xraph/tally/id"
)

// Store keeps monthly send counters. IncrementUsage is the only way a count
// goes up, and it must be a single atomic conditional update: either the
// count was below limit and is now one higher, or nothing changed.
type Store interface {
	// IncrementUsage adds one to the counter if it is below limit (or limit
	// is Unlimited). It returns the resulting count and whether the
	// increment happened.
	IncrementUsage(ctx context.Context, businessID id.BusinessID, period string, limit int64) (count int64, ok bool, err error)
	// ReleaseUsage takes back one increment after a failed send. It never
	// drops below zero.
	ReleaseUsage(ctx context.Context, businessID id.BusinessID, period string) error
	GetUsage(ctx context.Context, businessID id.BusinessID, period string) (int64, error)
}
