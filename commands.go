package tally

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/recurrence"
)

// LineItemInput is one requested line. Rate is in minor units of the
// invoice currency.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        int64           `json:"rate"`
	TaxTypeID   id.TaxTypeID    `json:"tax_type_id,omitempty"`
}

// DiscountInput requests a fixed (minor units) or percentage discount.
type DiscountInput struct {
	Kind    invoice.DiscountKind `json:"kind,omitempty"`
	Amount  int64                `json:"amount,omitempty"`
	Percent decimal.Decimal      `json:"percent,omitempty"`
}

// RecurrenceInput turns an invoice into a recurring template. StartDate is
// the first occurrence; zero means one period after the issue date.
type RecurrenceInput struct {
	Frequency recurrence.Frequency `json:"frequency"`
	Every     int                  `json:"every"`
	Day       int                  `json:"day,omitempty"`
	Month     int                  `json:"month,omitempty"`
	StartDate time.Time            `json:"start_date,omitempty"`
}

func (r *RecurrenceInput) rule() recurrence.Rule {
	every := r.Every
	if every == 0 {
		every = 1
	}
	return recurrence.Rule{Frequency: r.Frequency, Every: every, Day: r.Day, Month: r.Month}
}

// schedule resolves the stored rule and first occurrence for a template
// issued on issue. Unset day and month anchors are pinned to the first
// occurrence so short months never shift later ones.
func (r *RecurrenceInput) schedule(issue time.Time) (recurrence.Rule, time.Time) {
	rule := r.rule()
	first := r.StartDate
	if first.IsZero() {
		rule = rule.AnchoredAt(issue)
		return rule, rule.Next(issue)
	}
	return rule.AnchoredAt(first), first
}

// CreateInvoiceCommand creates a draft invoice or a recurring template.
type CreateInvoiceCommand struct {
	BusinessID          id.BusinessID    `json:"business_id"`
	ClientID            id.ClientID      `json:"client_id,omitempty"`
	Currency            string           `json:"currency,omitempty"`
	IssueDate           time.Time        `json:"issue_date,omitempty"`
	DueDate             time.Time        `json:"due_date,omitempty"`
	Items               []LineItemInput  `json:"items"`
	Shipping            int64            `json:"shipping,omitempty"`
	Discount            DiscountInput    `json:"discount"`
	Notes               string           `json:"notes,omitempty"`
	AcceptOnlinePayment bool             `json:"accept_online_payment"`
	ApplyDefaultTax     bool             `json:"apply_default_tax"`
	Recurrence          *RecurrenceInput `json:"recurrence,omitempty"`
}

// Validate checks the command shape. It does not require a client or
// complete line items; those are send-time requirements.
func (c *CreateInvoiceCommand) Validate() error {
	errs := &MultiError{}
	if c.BusinessID.IsNil() {
		errs.Add(Invalid("business_id", "is required"))
	}
	if !c.DueDate.IsZero() && !c.IssueDate.IsZero() && c.DueDate.Before(c.IssueDate) {
		errs.Add(Invalid("due_date", "must not be before issue_date"))
	}
	validateItems(errs, c.Items)
	validateMoneyFields(errs, c.Shipping, c.Discount)
	if c.Recurrence != nil {
		if err := c.Recurrence.rule().Validate(); err != nil {
			errs.Add(Invalid("recurrence", "%v", err))
		}
	}
	return errs.ErrOrNil()
}

// UpdateInvoiceCommand edits a draft. Nil fields are left unchanged; Items,
// when non-nil, replaces the line items wholesale.
type UpdateInvoiceCommand struct {
	BusinessID          id.BusinessID    `json:"business_id"`
	InvoiceID           id.InvoiceID     `json:"invoice_id"`
	ClientID            *id.ClientID     `json:"client_id,omitempty"`
	IssueDate           *time.Time       `json:"issue_date,omitempty"`
	DueDate             *time.Time       `json:"due_date,omitempty"`
	Items               []LineItemInput  `json:"items,omitempty"`
	Shipping            *int64           `json:"shipping,omitempty"`
	Discount            *DiscountInput   `json:"discount,omitempty"`
	Notes               *string          `json:"notes,omitempty"`
	AcceptOnlinePayment *bool            `json:"accept_online_payment,omitempty"`
	Recurrence          *RecurrenceInput `json:"recurrence,omitempty"`
	StopRecurring       bool             `json:"stop_recurring,omitempty"`
}

// Validate checks the command shape.
func (c *UpdateInvoiceCommand) Validate() error {
	errs := &MultiError{}
	if c.BusinessID.IsNil() {
		errs.Add(Invalid("business_id", "is required"))
	}
	if c.InvoiceID.IsNil() {
		errs.Add(Invalid("invoice_id", "is required"))
	}
	validateItems(errs, c.Items)
	var shipping int64
	if c.Shipping != nil {
		shipping = *c.Shipping
	}
	var discount DiscountInput
	if c.Discount != nil {
		discount = *c.Discount
	}
	validateMoneyFields(errs, shipping, discount)
	if c.Recurrence != nil {
		if err := c.Recurrence.rule().Validate(); err != nil {
			errs.Add(Invalid("recurrence", "%v", err))
		}
	}
	return errs.ErrOrNil()
}

// RecordPaymentCommand posts a payment against a sent invoice. Amount is in
// minor units of the invoice currency.
type RecordPaymentCommand struct {
	BusinessID id.BusinessID         `json:"business_id"`
	InvoiceID  id.InvoiceID          `json:"invoice_id"`
	Amount     int64                 `json:"amount"`
	Method     invoice.PaymentMethod `json:"method"`
	Notes      string                `json:"notes,omitempty"`
	Reference  string                `json:"reference,omitempty"`
	PaidAt     time.Time             `json:"paid_at,omitempty"`
}

// Validate checks the command shape.
func (c *RecordPaymentCommand) Validate() error {
	errs := &MultiError{}
	if c.BusinessID.IsNil() {
		errs.Add(Invalid("business_id", "is required"))
	}
	if c.InvoiceID.IsNil() {
		errs.Add(Invalid("invoice_id", "is required"))
	}
	if c.Amount <= 0 {
		errs.Add(Invalid("amount", "must be positive"))
	}
	return errs.ErrOrNil()
}

func validateItems(errs *MultiError, items []LineItemInput) {
	for i, it := range items {
		if it.Quantity.IsNegative() {
			errs.Add(Invalid(itemField(i, "quantity"), "must not be negative"))
		}
		if it.Rate < 0 {
			errs.Add(Invalid(itemField(i, "rate"), "must not be negative"))
		}
	}
}

func validateMoneyFields(errs *MultiError, shipping int64, d DiscountInput) {
	if shipping < 0 {
		errs.Add(Invalid("shipping", "must not be negative"))
	}
	switch d.Kind {
	case invoice.DiscountNone:
	case invoice.DiscountFixed:
		if d.Amount < 0 {
			errs.Add(Invalid("discount.amount", "must not be negative"))
		}
	case invoice.DiscountPercent:
		if d.Percent.IsNegative() || d.Percent.GreaterThan(decimal.NewFromInt(100)) {
			errs.Add(Invalid("discount.percent", "must be between 0 and 100"))
		}
	default:
		errs.Add(Invalid("discount.kind", "unknown kind %q", d.Kind))
	}
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}
