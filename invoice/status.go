package invoice

import (
	"time"

	"github.com/xraph/tally/types"
)

// Status is the persisted lifecycle state of an invoice.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusSent          Status = "sent"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"

	// StatusOverdue is a display label derived at read time. It is never
	// written; a stored value is read back as StatusSent.
	StatusOverdue Status = "overdue"
)

// PaidTolerance is the rounding slack, in minor units, when deciding whether
// an invoice is settled.
const PaidTolerance int64 = 1

var transitions = map[Status][]Status{
	StatusDraft:         {StatusSent},
	StatusSent:          {StatusSent, StatusPartiallyPaid, StatusPaid},
	StatusPartiallyPaid: {StatusPartiallyPaid, StatusPaid},
	StatusPaid:          {},
}

// Normalize maps a stored status to its authoritative form.
func Normalize(s Status) Status {
	if s == StatusOverdue {
		return StatusSent
	}
	return s
}

// IsValid reports whether s is a persistable status.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from → to is a legal move. Same-state moves
// on sent and partially_paid cover resends and further partial payments.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[Normalize(from)] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AcceptsPayment reports whether payments may be posted in status s.
func AcceptsPayment(s Status) bool {
	s = Normalize(s)
	return s == StatusSent || s == StatusPartiallyPaid
}

// IsResendable reports whether the invoice was already sent and can be
// delivered again without consuming quota.
func IsResendable(s Status) bool {
	return AcceptsPayment(s)
}

// StatusForAmountPaid returns the status implied by paid against total.
func StatusForAmountPaid(total, paid types.Money) Status {
	switch {
	case paid.Amount >= total.Amount-PaidTolerance:
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusSent
	}
}

// DisplayStatus returns the status a reader should see at now, deriving
// overdue from the due date.
func (inv *Invoice) DisplayStatus(now time.Time) Status {
	s := Normalize(inv.Status)
	if (s == StatusSent || s == StatusPartiallyPaid) && !inv.DueDate.IsZero() && inv.DueDate.Before(now) {
		return StatusOverdue
	}
	return s
}

// IsOverdue reports whether the invoice is past due at now.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.DisplayStatus(now) == StatusOverdue
}
