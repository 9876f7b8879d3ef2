package tally

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tally/calc"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

// Occurrence is one invoice generated from a recurring template.
type Occurrence struct {
	Template *invoice.Invoice `json:"template"`
	Invoice  *invoice.Invoice `json:"invoice"`
	Sent     bool             `json:"sent"`
	// SendError explains why the occurrence was left as a draft.
	SendError error `json:"-"`
	// NextDate is the template's advanced next occurrence.
	NextDate time.Time `json:"next_date"`
}

// DueTemplates returns recurring templates due at or before asOf.
func (t *Tally) DueTemplates(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	return t.store.ListDueTemplates(ctx, asOf, limit)
}

// GenerateFromTemplate issues the next occurrence of tmpl as of now.
//
// The occurrence is persisted and the template advanced before delivery is
// attempted, so a failed send never causes a duplicate on the next pass.
// Missed periods collapse into this one occurrence. Send failures (no
// client, quota) leave the occurrence as a draft and are reported on the
// Occurrence, not returned.
func (t *Tally) GenerateFromTemplate(ctx context.Context, tmpl *invoice.Invoice, now time.Time) (*Occurrence, error) {
	occ, err := t.generate(ctx, tmpl, now)
	if err != nil {
		t.plugins.EmitRecurringFailed(ctx, tmpl.ID.String(), err)
		return nil, err
	}
	t.plugins.EmitRecurringGenerated(ctx, tmpl, occ.Invoice)
	return occ, nil
}

func (t *Tally) generate(ctx context.Context, tmpl *invoice.Invoice, now time.Time) (*Occurrence, error) {
	if !tmpl.IsTemplate() {
		return nil, fmt.Errorf("%w: invoice %s is not recurring", ErrInvalidInput, tmpl.ID)
	}
	if tmpl.NextRecurringDate == nil {
		return nil, Invalid("next_recurring_date", "template %s has no next occurrence", tmpl.ID)
	}
	if err := tmpl.Recurrence.Validate(); err != nil {
		return nil, Invalid("recurrence", "%v", err)
	}
	b, err := t.loadBusiness(ctx, tmpl.BusinessID)
	if err != nil {
		return nil, err
	}
	cat, err := t.catalog(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	now = now.In(t.location)
	inv := tmpl.Spawn()
	inv.Entity = types.NewEntityAt(now)
	inv.IssueDate = dateOf(now)
	inv.DueDate = inv.IssueDate.AddDate(0, 0, t.termsFor(b))
	if err := t.assignIdentity(ctx, b, inv); err != nil {
		return nil, err
	}
	calc.Apply(inv, cat)

	if err := t.store.CreateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("create occurrence: %w", err)
	}
	t.plugins.EmitInvoiceCreated(ctx, inv)

	next := tmpl.Recurrence.NextAfter(*tmpl.NextRecurringDate, now)
	last := now
	tmpl.LastRecurringDate = &last
	tmpl.NextRecurringDate = &next
	tmpl.TouchAt(now)
	if err := t.store.UpdateInvoice(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("advance template: %w", err)
	}

	occ := &Occurrence{Template: tmpl, Invoice: inv, NextDate: next}
	res, err := t.SendInvoice(ctx, b.ID, inv.ID)
	switch {
	case err == nil:
		occ.Invoice = res.Invoice
		occ.Sent = true
	case IsValidation(err), IsQuotaExceeded(err), errors.Is(err, ErrStatusConflict):
		occ.SendError = err
		t.logger.Info("recurring occurrence left as draft",
			"template_id", tmpl.ID.String(),
			"invoice_id", inv.ID.String(),
			"reason", err,
		)
	default:
		occ.SendError = err
		t.logger.Error("recurring occurrence send failed",
			"template_id", tmpl.ID.String(),
			"invoice_id", inv.ID.String(),
			"error", err,
		)
	}
	return occ, nil
}
