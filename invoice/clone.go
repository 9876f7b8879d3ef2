package invoice

import (
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Spawn copies a recurring template into a fresh draft occurrence. The copy
// gets new invoice and line-item ids, no payments, no recurrence, and keeps a
// back-reference to its template. Number, share token, dates and totals are
// left for the caller to assign.
func (inv *Invoice) Spawn() *Invoice {
	out := &Invoice{
		ID:                  id.NewInvoiceID(),
		BusinessID:          inv.BusinessID,
		ClientID:            inv.ClientID,
		Status:              StatusDraft,
		Currency:            inv.Currency,
		Notes:               inv.Notes,
		Shipping:            inv.Shipping,
		Discount:            inv.Discount,
		AcceptOnlinePayment: inv.AcceptOnlinePayment,
		TemplateID:          inv.ID,
		AmountPaid:          types.Zero(inv.Currency),
	}

	out.LineItems = make([]LineItem, len(inv.LineItems))
	for i, li := range inv.LineItems {
		li.ID = id.NewLineItemID()
		out.LineItems[i] = li
	}
	return out
}

// Clone returns a deep copy of inv, sharing nothing mutable with it.
func (inv *Invoice) Clone() *Invoice {
	out := *inv
	out.LineItems = append([]LineItem(nil), inv.LineItems...)
	out.Payments = append([]Payment(nil), inv.Payments...)
	out.TaxBreakdown = append([]TaxLine(nil), inv.TaxBreakdown...)
	out.NextRecurringDate = cloneTime(inv.NextRecurringDate)
	out.LastRecurringDate = cloneTime(inv.LastRecurringDate)
	out.SentAt = cloneTime(inv.SentAt)
	out.PaidAt = cloneTime(inv.PaidAt)
	out.ThankYouSentAt = cloneTime(inv.ThankYouSentAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
