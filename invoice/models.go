// Package invoice defines the invoice aggregate: the invoice itself, its
// exclusively owned line items, its append-only payment ledger, and the
// status machine that governs them.
package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/recurrence"
	"github.com/xraph/tally/types"
)

// Invoice is one bill from a business to a client. Monetary totals are
// derived by the calculator and only written through it; AmountPaid is the
// running sum of Payments.
type Invoice struct {
	types.Entity
	ID         id.InvoiceID  `json:"id"`
	BusinessID id.BusinessID `json:"business_id"`
	ClientID   id.ClientID   `json:"client_id,omitempty"`
	Number     string        `json:"invoice_number"`
	Status     Status        `json:"status"`
	Currency   string        `json:"currency"`
	IssueDate  time.Time     `json:"issue_date"`
	DueDate    time.Time     `json:"due_date"`
	Notes      string        `json:"notes,omitempty"`

	LineItems []LineItem `json:"line_items"`
	Payments  []Payment  `json:"payments,omitempty"`

	Shipping       types.Money `json:"shipping"`
	Discount       Discount    `json:"discount"`
	Subtotal       types.Money `json:"subtotal"`
	TaxAmount      types.Money `json:"tax_amount"`
	TaxBreakdown   []TaxLine   `json:"tax_breakdown,omitempty"`
	DiscountAmount types.Money `json:"discount_amount"`
	Total          types.Money `json:"total"`
	AmountPaid     types.Money `json:"amount_paid"`

	ShareToken          string `json:"-"`
	AcceptOnlinePayment bool   `json:"accept_online_payment"`
	PaymentLink         string `json:"payment_link,omitempty"`
	CheckoutSessionID   string `json:"checkout_session_id,omitempty"`

	IsRecurring       bool            `json:"is_recurring"`
	Recurrence        recurrence.Rule `json:"recurrence,omitempty"`
	NextRecurringDate *time.Time      `json:"next_recurring_date,omitempty"`
	LastRecurringDate *time.Time      `json:"last_recurring_date,omitempty"`
	TemplateID        id.InvoiceID    `json:"template_id,omitempty"`

	SentAt         *time.Time `json:"sent_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	ThankYouSentAt *time.Time `json:"thank_you_sent_at,omitempty"`

	// Version counts stored writes. Stores bump it on every update.
	Version int64 `json:"version"`
}

// LineItem is a single billed row. LineTotal is quantity × rate rounded to
// the minor unit.
type LineItem struct {
	ID          id.LineItemID   `json:"id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        types.Money     `json:"rate"`
	TaxTypeID   id.TaxTypeID    `json:"tax_type_id,omitempty"`
	LineTotal   types.Money     `json:"line_total"`
}

// IsValid reports whether the item may appear on a sent invoice.
func (li LineItem) IsValid() bool {
	return li.Description != "" && li.Quantity.IsPositive() && !li.Rate.IsNegative()
}

// TaxLine is one bucket of the per-tax-type breakdown.
type TaxLine struct {
	TaxTypeID id.TaxTypeID    `json:"tax_type_id"`
	Name      string          `json:"name"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    types.Money     `json:"amount"`
}

// DiscountKind selects how a Discount is applied to the subtotal.
type DiscountKind string

const (
	DiscountNone    DiscountKind = ""
	DiscountFixed   DiscountKind = "fixed"
	DiscountPercent DiscountKind = "percent"
)

// Discount is either a fixed amount or a percentage of the subtotal.
type Discount struct {
	Kind    DiscountKind    `json:"kind,omitempty"`
	Amount  types.Money     `json:"amount,omitempty"`
	Percent decimal.Decimal `json:"percent,omitempty"`
}

// PaymentMethod records how a payment was made.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCard         PaymentMethod = "card"
	MethodCheck        PaymentMethod = "check"
	MethodGateway      PaymentMethod = "gateway"
	MethodOther        PaymentMethod = "other"
)

// Payment is an append-only ledger entry against an invoice.
type Payment struct {
	ID        id.PaymentID  `json:"id"`
	InvoiceID id.InvoiceID  `json:"invoice_id"`
	Amount    types.Money   `json:"amount"`
	Method    PaymentMethod `json:"method"`
	Notes     string        `json:"notes,omitempty"`
	Reference string        `json:"reference,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// BalanceDue is Total − AmountPaid.
func (inv *Invoice) BalanceDue() types.Money {
	return inv.Total.Subtract(inv.AmountPaid)
}

// IsTemplate reports whether the invoice is a recurring pattern.
func (inv *Invoice) IsTemplate() bool {
	return inv.IsRecurring
}

// HasPaymentReference reports whether a payment with the given external
// reference was already posted.
func (inv *Invoice) HasPaymentReference(ref string) bool {
	if ref == "" {
		return false
	}
	for _, p := range inv.Payments {
		if p.Reference == ref {
			return true
		}
	}
	return false
}

// SumPayments recomputes AmountPaid from the payment ledger.
func (inv *Invoice) SumPayments() types.Money {
	paid := types.Zero(inv.Currency)
	for _, p := range inv.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}
