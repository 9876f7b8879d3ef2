package tally

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/calc"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/types"
)

// InvoiceView is an invoice with its read-time derived fields.
type InvoiceView struct {
	*invoice.Invoice
	DisplayStatus invoice.Status `json:"display_status"`
	BalanceDue    types.Money    `json:"balance_due"`
	IsOverdue     bool           `json:"is_overdue"`
	PublicURL     string         `json:"public_url,omitempty"`
}

// CreateInvoice creates a draft, or a recurring template when cmd carries a
// recurrence. Totals are computed server-side with the same calculator
// PreviewTotals uses.
func (t *Tally) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (*invoice.Invoice, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	b, err := t.loadBusiness(ctx, cmd.BusinessID)
	if err != nil {
		return nil, err
	}
	if !cmd.ClientID.IsNil() {
		if _, err := t.loadClient(ctx, b.ID, cmd.ClientID); err != nil {
			return nil, err
		}
	}
	cat, err := t.catalog(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	now := t.Now()
	cur := t.currencyFor(b, cmd.Currency)
	issue := cmd.IssueDate
	if issue.IsZero() {
		issue = dateOf(now)
	}
	due := cmd.DueDate
	if due.IsZero() {
		due = issue.AddDate(0, 0, t.termsFor(b))
	}

	inv := &invoice.Invoice{
		Entity:              types.NewEntityAt(now),
		ID:                  id.NewInvoiceID(),
		BusinessID:          b.ID,
		ClientID:            cmd.ClientID,
		Status:              invoice.StatusDraft,
		Currency:            cur,
		IssueDate:           issue,
		DueDate:             due,
		Notes:               strings.TrimSpace(cmd.Notes),
		LineItems:           buildLineItems(cmd.Items, cur, cat, cmd.ApplyDefaultTax),
		Shipping:            types.New(cmd.Shipping, cur),
		Discount:            buildDiscount(cmd.Discount, cur),
		AmountPaid:          types.Zero(cur),
		AcceptOnlinePayment: cmd.AcceptOnlinePayment,
	}
	if cmd.Recurrence != nil {
		rule, next := cmd.Recurrence.schedule(issue)
		inv.IsRecurring = true
		inv.Recurrence = rule
		inv.NextRecurringDate = &next
	}

	if err := t.assignIdentity(ctx, b, inv); err != nil {
		return nil, err
	}
	calc.Apply(inv, cat)

	if err := t.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	t.plugins.EmitInvoiceCreated(ctx, inv)
	t.logger.Debug("invoice created",
		"invoice_id", inv.ID.String(),
		"business_id", b.ID.String(),
		"number", inv.Number,
		"template", inv.IsRecurring,
	)
	return inv, nil
}

// UpdateInvoice edits a draft or template. Sent invoices are immutable
// apart from payments.
func (t *Tally) UpdateInvoice(ctx context.Context, cmd UpdateInvoiceCommand) (*invoice.Invoice, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	inv, err := t.loadInvoice(ctx, cmd.BusinessID, cmd.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Normalize(inv.Status) != invoice.StatusDraft {
		return nil, ErrInvoiceNotEditable
	}
	cat, err := t.catalog(ctx, inv.BusinessID)
	if err != nil {
		return nil, err
	}

	if cmd.ClientID != nil {
		if !cmd.ClientID.IsNil() {
			if _, err := t.loadClient(ctx, inv.BusinessID, *cmd.ClientID); err != nil {
				return nil, err
			}
		}
		inv.ClientID = *cmd.ClientID
	}
	if cmd.IssueDate != nil {
		inv.IssueDate = *cmd.IssueDate
	}
	if cmd.DueDate != nil {
		inv.DueDate = *cmd.DueDate
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return nil, Invalid("due_date", "must not be before issue_date")
	}
	if cmd.Items != nil {
		inv.LineItems = buildLineItems(cmd.Items, inv.Currency, cat, false)
	}
	if cmd.Shipping != nil {
		inv.Shipping = types.New(*cmd.Shipping, inv.Currency)
	}
	if cmd.Discount != nil {
		inv.Discount = buildDiscount(*cmd.Discount, inv.Currency)
	}
	if cmd.Notes != nil {
		inv.Notes = strings.TrimSpace(*cmd.Notes)
	}
	if cmd.AcceptOnlinePayment != nil {
		inv.AcceptOnlinePayment = *cmd.AcceptOnlinePayment
	}
	switch {
	case cmd.StopRecurring:
		inv.IsRecurring = false
		inv.NextRecurringDate = nil
	case cmd.Recurrence != nil:
		rule, next := cmd.Recurrence.schedule(inv.IssueDate)
		inv.IsRecurring = true
		inv.Recurrence = rule
		inv.NextRecurringDate = &next
	}

	calc.Apply(inv, cat)
	inv.TouchAt(t.Now())

	if err := t.store.TransitionInvoice(ctx, inv, invoice.StatusDraft); err != nil {
		return nil, err
	}

	t.plugins.EmitInvoiceUpdated(ctx, inv)
	return inv, nil
}

// GetInvoice retrieves an invoice owned by businessID.
func (t *Tally) GetInvoice(ctx context.Context, businessID id.BusinessID, invID id.InvoiceID) (*invoice.Invoice, error) {
	return t.loadInvoice(ctx, businessID, invID)
}

// GetInvoiceView retrieves an invoice with its derived display status.
func (t *Tally) GetInvoiceView(ctx context.Context, businessID id.BusinessID, invID id.InvoiceID) (*InvoiceView, error) {
	inv, err := t.loadInvoice(ctx, businessID, invID)
	if err != nil {
		return nil, err
	}
	return t.view(inv), nil
}

// ListInvoices lists a business's invoices. StatusOverdue in opts.Statuses
// is matched against the derived display status.
func (t *Tally) ListInvoices(ctx context.Context, businessID id.BusinessID, opts invoice.ListOpts) ([]*InvoiceView, error) {
	if !slices.Contains(opts.Statuses, invoice.StatusOverdue) {
		invs, err := t.store.ListInvoices(ctx, businessID, opts)
		if err != nil {
			return nil, err
		}
		return t.views(invs), nil
	}

	wanted := opts.Statuses
	query := opts
	query.Statuses = nil
	query.Limit, query.Offset = 0, 0
	invs, err := t.store.ListInvoices(ctx, businessID, query)
	if err != nil {
		return nil, err
	}

	now := t.Now()
	out := make([]*InvoiceView, 0, len(invs))
	for _, inv := range invs {
		if slices.Contains(wanted, inv.DisplayStatus(now)) {
			out = append(out, t.view(inv))
		}
	}
	start := min(opts.Offset, len(out))
	end := len(out)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, len(out))
	}
	return out[start:end], nil
}

// DeleteInvoice removes an invoice in any state. Its number is not reused.
func (t *Tally) DeleteInvoice(ctx context.Context, businessID id.BusinessID, invID id.InvoiceID) error {
	inv, err := t.loadInvoice(ctx, businessID, invID)
	if err != nil {
		return err
	}
	if err := t.store.DeleteInvoice(ctx, inv.ID); err != nil {
		return err
	}
	t.plugins.EmitInvoiceDeleted(ctx, businessID.String(), invID.String())
	return nil
}

// PreviewTotals computes what CreateInvoice would persist for cmd, without
// writing anything.
func (t *Tally) PreviewTotals(ctx context.Context, cmd CreateInvoiceCommand) (calc.Totals, error) {
	if err := cmd.Validate(); err != nil {
		return calc.Totals{}, err
	}
	b, err := t.loadBusiness(ctx, cmd.BusinessID)
	if err != nil {
		return calc.Totals{}, err
	}
	cat, err := t.catalog(ctx, b.ID)
	if err != nil {
		return calc.Totals{}, err
	}
	cur := t.currencyFor(b, cmd.Currency)
	return calc.Compute(calc.Input{
		Currency: cur,
		Items:    buildLineItems(cmd.Items, cur, cat, cmd.ApplyDefaultTax),
		Catalog:  cat,
		Shipping: types.New(cmd.Shipping, cur),
		Discount: buildDiscount(cmd.Discount, cur),
	}), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (t *Tally) loadInvoice(ctx context.Context, businessID id.BusinessID, invID id.InvoiceID) (*invoice.Invoice, error) {
	if invID.IsNil() {
		return nil, notFound("invoice", "")
	}
	inv, err := t.store.GetInvoice(ctx, invID)
	if err != nil {
		if IsNotFound(err) {
			return nil, notFound("invoice", invID.String())
		}
		return nil, err
	}
	if inv.BusinessID.String() != businessID.String() {
		return nil, notFound("invoice", invID.String())
	}
	inv.Status = invoice.Normalize(inv.Status)
	return inv, nil
}

// assignIdentity gives inv the next number in its business sequence and a
// fresh share token.
func (t *Tally) assignIdentity(ctx context.Context, b *business.Business, inv *invoice.Invoice) error {
	seq, err := t.store.NextInvoiceSeq(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("next invoice number: %w", err)
	}
	token, err := NewShareToken()
	if err != nil {
		return err
	}
	inv.Number = b.FormatInvoiceNumber(seq)
	inv.ShareToken = token
	return nil
}

func (t *Tally) view(inv *invoice.Invoice) *InvoiceView {
	now := t.Now()
	return &InvoiceView{
		Invoice:       inv,
		DisplayStatus: inv.DisplayStatus(now),
		BalanceDue:    inv.BalanceDue(),
		IsOverdue:     inv.IsOverdue(now),
		PublicURL:     t.PublicURL(inv.ShareToken),
	}
}

func (t *Tally) views(invs []*invoice.Invoice) []*InvoiceView {
	out := make([]*InvoiceView, len(invs))
	for i, inv := range invs {
		out[i] = t.view(inv)
	}
	return out
}

func (t *Tally) termsFor(b *business.Business) int {
	if b.PaymentTermsDays > 0 {
		return b.PaymentTermsDays
	}
	return t.paymentTerms
}

func (t *Tally) currencyFor(b *business.Business, requested string) string {
	if c := strings.ToLower(strings.TrimSpace(requested)); c != "" {
		return c
	}
	if b.Currency != "" {
		return b.Currency
	}
	return "usd"
}

func buildLineItems(in []LineItemInput, cur string, cat *tax.Catalog, applyDefault bool) []invoice.LineItem {
	def, hasDefault := cat.Default()
	out := make([]invoice.LineItem, len(in))
	for i, it := range in {
		li := invoice.LineItem{
			ID:          id.NewLineItemID(),
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			Rate:        types.New(it.Rate, cur),
			TaxTypeID:   it.TaxTypeID,
		}
		if applyDefault && hasDefault && li.TaxTypeID.IsNil() {
			li.TaxTypeID = def.ID
		}
		out[i] = li
	}
	return out
}

func buildDiscount(in DiscountInput, cur string) invoice.Discount {
	switch in.Kind {
	case invoice.DiscountFixed:
		return invoice.Discount{Kind: in.Kind, Amount: types.New(in.Amount, cur)}
	case invoice.DiscountPercent:
		return invoice.Discount{Kind: in.Kind, Percent: in.Percent}
	default:
		return invoice.Discount{}
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
