package invoice

import (
	"context"
	"slices"
	"time"

	"github.com/xraph/tally/id"
)

// Store persists invoices together with their line items and payments.
// Line items and payments are owned by the invoice row and are written
// wholesale with it.
type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*Invoice, error)
	GetInvoiceByShareToken(ctx context.Context, token string) (*Invoice, error)
	ListInvoices(ctx context.Context, businessID id.BusinessID, opts ListOpts) ([]*Invoice, error)
	// UpdateInvoice overwrites inv and bumps inv.Version.
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	// TransitionInvoice writes inv only if the stored status still equals
	// from and the stored version still equals inv.Version, returning an
	// ErrStatusConflict-wrapping error otherwise. On success inv.Version is
	// bumped.
	TransitionInvoice(ctx context.Context, inv *Invoice, from Status) error
	DeleteInvoice(ctx context.Context, invID id.InvoiceID) error
	// ListDueTemplates returns recurring templates whose next occurrence is
	// at or before asOf, oldest first.
	ListDueTemplates(ctx context.Context, asOf time.Time, limit int) ([]*Invoice, error)
}

// ListOpts filters ListInvoices. Zero values mean "no filter".
type ListOpts struct {
	Statuses  []Status
	ClientID  id.ClientID
	Templates *bool
	DueBefore time.Time
	Limit     int
	Offset    int
}

// Matches applies the filter to one invoice. Stored statuses are compared in
// their normalized form.
func (o ListOpts) Matches(inv *Invoice) bool {
	if len(o.Statuses) > 0 && !slices.Contains(o.Statuses, Normalize(inv.Status)) {
		return false
	}
	if !o.ClientID.IsNil() && inv.ClientID.String() != o.ClientID.String() {
		return false
	}
	if o.Templates != nil && inv.IsRecurring != *o.Templates {
		return false
	}
	if !o.DueBefore.IsZero() && !inv.DueDate.Before(o.DueBefore) {
		return false
	}
	return true
}
