// Package calc derives invoice totals from line items and a tax catalog.
//
// Compute is pure and deterministic. Rounding happens at exactly two points:
// each line total (quantity × rate) is rounded to the minor unit, and each
// tax bucket is accumulated exactly and rounded once. Both roundings are half
// away from zero. Previews and persisted invoices go through the same
// function, so they always agree.
package calc

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/types"
)

var hundred = decimal.NewFromInt(100)

// Input is everything Compute needs.
type Input struct {
	Currency string
	Items    []invoice.LineItem
	Catalog  *tax.Catalog
	Shipping types.Money
	Discount invoice.Discount
}

// Totals is the result of a computation. Taxes is ordered by the first line
// item that referenced each tax type.
type Totals struct {
	Subtotal       types.Money       `json:"subtotal"`
	Taxes          []invoice.TaxLine `json:"taxes"`
	TaxAmount      types.Money       `json:"tax_amount"`
	Shipping       types.Money       `json:"shipping"`
	DiscountAmount types.Money       `json:"discount_amount"`
	Total          types.Money       `json:"total"`
	LineTotals     []types.Money     `json:"line_totals"`
}

// Breakdown returns the tax buckets keyed by tax type id.
func (t Totals) Breakdown() map[string]invoice.TaxLine {
	out := make(map[string]invoice.TaxLine, len(t.Taxes))
	for _, tl := range t.Taxes {
		out[tl.TaxTypeID.String()] = tl
	}
	return out
}

// LineTotal returns quantity × rate rounded to the minor unit.
func LineTotal(quantity decimal.Decimal, rate types.Money) types.Money {
	return rate.Mul(quantity)
}

// Compute derives totals. Items without a tax type, or whose tax type is not
// in the catalog, contribute no tax. The total is not clamped: a discount
// larger than the rest of the invoice yields a negative total.
func Compute(in Input) Totals {
	cur := in.Currency
	out := Totals{
		Subtotal:   types.Zero(cur),
		TaxAmount:  types.Zero(cur),
		Shipping:   inCurrency(in.Shipping, cur),
		LineTotals: make([]types.Money, len(in.Items)),
	}

	type bucket struct {
		line  invoice.TaxLine
		exact decimal.Decimal
	}
	var order []string
	buckets := make(map[string]*bucket)

	for i, li := range in.Items {
		lt := LineTotal(li.Quantity, inCurrency(li.Rate, cur))
		out.LineTotals[i] = lt
		out.Subtotal = out.Subtotal.Add(lt)

		tt, ok := in.Catalog.Lookup(li.TaxTypeID)
		if !ok {
			continue
		}
		key := tt.ID.String()
		b, seen := buckets[key]
		if !seen {
			b = &bucket{line: invoice.TaxLine{TaxTypeID: tt.ID, Name: tt.Name, Rate: tt.Rate}}
			buckets[key] = b
			order = append(order, key)
		}
		b.exact = b.exact.Add(lt.Decimal().Mul(tt.Rate).Div(hundred))
	}

	for _, key := range order {
		b := buckets[key]
		b.line.Amount = types.FromMinorDecimal(b.exact, cur)
		out.Taxes = append(out.Taxes, b.line)
		out.TaxAmount = out.TaxAmount.Add(b.line.Amount)
	}

	out.DiscountAmount = discountAmount(in.Discount, out.Subtotal)
	out.Total = out.Subtotal.Add(out.TaxAmount).Add(out.Shipping).Subtract(out.DiscountAmount)
	return out
}

// Apply computes totals for inv against catalog and writes them back,
// including each line item's LineTotal.
func Apply(inv *invoice.Invoice, catalog *tax.Catalog) Totals {
	t := Compute(Input{
		Currency: inv.Currency,
		Items:    inv.LineItems,
		Catalog:  catalog,
		Shipping: inv.Shipping,
		Discount: inv.Discount,
	})

	for i := range inv.LineItems {
		inv.LineItems[i].LineTotal = t.LineTotals[i]
	}
	inv.Shipping = t.Shipping
	inv.Subtotal = t.Subtotal
	inv.TaxAmount = t.TaxAmount
	inv.TaxBreakdown = t.Taxes
	inv.DiscountAmount = t.DiscountAmount
	inv.Total = t.Total
	return t
}

func discountAmount(d invoice.Discount, subtotal types.Money) types.Money {
	switch d.Kind {
	case invoice.DiscountFixed:
		return inCurrency(d.Amount, subtotal.Currency)
	case invoice.DiscountPercent:
		return subtotal.Mul(d.Percent.Div(hundred))
	default:
		return types.Zero(subtotal.Currency)
	}
}

// inCurrency tags a currency-less zero value with cur.
func inCurrency(m types.Money, cur string) types.Money {
	if m.Currency == "" {
		return types.New(m.Amount, cur)
	}
	return types.New(m.Amount, m.Currency)
}
