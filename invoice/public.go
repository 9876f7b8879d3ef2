package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/types"
)

// PublicView is the projection served to holders of a share token. It carries
// no ids other than the invoice's own and no business data beyond what is
// printed on the invoice.
type PublicView struct {
	ID             string       `json:"id"`
	Number         string       `json:"invoice_number"`
	Status         Status       `json:"status"`
	IssueDate      time.Time    `json:"issue_date"`
	DueDate        time.Time    `json:"due_date"`
	BusinessName   string       `json:"business_name"`
	ClientName     string       `json:"client_name,omitempty"`
	Items          []PublicItem `json:"items"`
	Taxes          []PublicTax  `json:"taxes,omitempty"`
	Subtotal       types.Money  `json:"subtotal"`
	TaxAmount      types.Money  `json:"tax_amount"`
	Shipping       types.Money  `json:"shipping"`
	DiscountAmount types.Money  `json:"discount_amount"`
	Total          types.Money  `json:"total"`
	AmountPaid     types.Money  `json:"amount_paid"`
	BalanceDue     types.Money  `json:"balance_due"`
	Notes          string       `json:"notes,omitempty"`
	PaymentLink    string       `json:"payment_link,omitempty"`
	CanPayOnline   bool         `json:"can_pay_online"`
	PaidAt         *time.Time   `json:"paid_at,omitempty"`
}

// PublicItem is a line item without internal references.
type PublicItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        types.Money     `json:"rate"`
	LineTotal   types.Money     `json:"line_total"`
}

// PublicTax is a tax bucket without its catalog id.
type PublicTax struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount types.Money     `json:"amount"`
}

// Public builds the sanitized projection of inv at now.
func (inv *Invoice) Public(businessName, clientName string, now time.Time) *PublicView {
	v := &PublicView{
		ID:             inv.ID.String(),
		Number:         inv.Number,
		Status:         inv.DisplayStatus(now),
		IssueDate:      inv.IssueDate,
		DueDate:        inv.DueDate,
		BusinessName:   businessName,
		ClientName:     clientName,
		Subtotal:       inv.Subtotal,
		TaxAmount:      inv.TaxAmount,
		Shipping:       inv.Shipping,
		DiscountAmount: inv.DiscountAmount,
		Total:          inv.Total,
		AmountPaid:     inv.AmountPaid,
		BalanceDue:     inv.BalanceDue(),
		Notes:          inv.Notes,
		PaymentLink:    inv.PaymentLink,
		CanPayOnline:   inv.AcceptOnlinePayment && AcceptsPayment(inv.Status),
		PaidAt:         inv.PaidAt,
	}
	v.Items = make([]PublicItem, len(inv.LineItems))
	for i, li := range inv.LineItems {
		v.Items[i] = PublicItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			Rate:        li.Rate,
			LineTotal:   li.LineTotal,
		}
	}
	for _, t := range inv.TaxBreakdown {
		v.Taxes = append(v.Taxes, PublicTax{Name: t.Name, Rate: t.Rate, Amount: t.Amount})
	}
	return v
}
