// Package business defines the tenant that issues invoices and its
// subscription tier.
package business

import (
	"fmt"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Tier is the subscription level controlling the monthly send quota.
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool { return t == TierFree || t == TierPro }

// DefaultPaymentTermsDays is used when a business has no explicit terms.
const DefaultPaymentTermsDays = 30

// DefaultInvoicePrefix is used when a business has no explicit prefix.
const DefaultInvoicePrefix = "INV"

// Business is a tenant. InvoiceSeq is the last issued invoice sequence and
// only ever moves forward.
type Business struct {
	types.Entity
	ID               id.BusinessID `json:"id"`
	Name             string        `json:"name"`
	Email            string        `json:"email"`
	Currency         string        `json:"currency"`
	Tier             Tier          `json:"tier"`
	PaymentTermsDays int           `json:"payment_terms_days"`
	InvoicePrefix    string        `json:"invoice_prefix"`
	PaymentAccountID string        `json:"payment_account_id,omitempty"`
	Address          string        `json:"address,omitempty"`
	InvoiceSeq       int64         `json:"invoice_seq"`
}

// Terms returns the payment terms in days, falling back to the default.
func (b *Business) Terms() int {
	if b.PaymentTermsDays > 0 {
		return b.PaymentTermsDays
	}
	return DefaultPaymentTermsDays
}

// AcceptsOnlinePayments reports whether a payment account is connected.
func (b *Business) AcceptsOnlinePayments() bool {
	return b.PaymentAccountID != ""
}

// FormatInvoiceNumber renders a sequence value as e.g. "INV-0007".
func (b *Business) FormatInvoiceNumber(seq int64) string {
	prefix := b.InvoicePrefix
	if prefix == "" {
		prefix = DefaultInvoicePrefix
	}
	return fmt.Sprintf("%s-%04d", prefix, seq)
}
