// Package usage meters invoice sends per business per calendar month and
// gates sends against the business's tier quota.
package usage

import (
	"time"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/id"
)

// Unlimited is the limit value for tiers without a send quota.
const Unlimited int64 = -1

// DefaultFreeLimit is the monthly send quota of the free tier.
const DefaultFreeLimit int64 = 3

// Period returns the calendar-month key ("2006-01") containing t.
func Period(t time.Time) string {
	return t.Format("2006-01")
}

// PeriodStart returns midnight on the first day of t's month, in t's location.
func PeriodStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Limits maps tiers to monthly send quotas.
type Limits struct {
	Free int64 `json:"free" mapstructure:"free" yaml:"free"`
}

// DefaultLimits returns the stock quota table.
func DefaultLimits() Limits { return Limits{Free: DefaultFreeLimit} }

// For returns the quota for tier. Pro and unknown-but-paid tiers are
// unlimited.
func (l Limits) For(tier business.Tier) int64 {
	if tier == business.TierFree || tier == "" {
		return l.Free
	}
	return Unlimited
}

// Counter is the stored per-business, per-month aggregate.
type Counter struct {
	BusinessID id.BusinessID `json:"business_id"`
	Period     string        `json:"period"`
	Count      int64         `json:"count"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Snapshot answers "may this business send one more invoice this month?".
type Snapshot struct {
	BusinessID id.BusinessID `json:"business_id"`
	Period     string        `json:"period"`
	Tier       business.Tier `json:"tier"`
	Count      int64         `json:"count"`
	Limit      int64         `json:"limit"`
	Remaining  int64         `json:"remaining"`
	CanSend    bool          `json:"can_send"`
}

// NewSnapshot derives Remaining and CanSend.
func NewSnapshot(businessID id.BusinessID, period string, tier business.Tier, count, limit int64) *Snapshot {
	s := &Snapshot{
		BusinessID: businessID,
		Period:     period,
		Tier:       tier,
		Count:      count,
		Limit:      limit,
	}
	if limit == Unlimited {
		s.Remaining = Unlimited
		s.CanSend = true
		return s
	}
	s.Remaining = max(limit-count, 0)
	s.CanSend = count < limit
	return s
}
