// Package render produces printable invoice documents.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

// Snapshot is the read-only input to a Renderer.
type Snapshot struct {
	Invoice  *invoice.Invoice
	Business *business.Business
	Client   *client.Client // may be nil
	Now      time.Time
}

// Renderer writes a document for a snapshot.
type Renderer interface {
	ContentType() string
	Render(ctx context.Context, snap Snapshot, w io.Writer) error
}

// PDF renders A4 invoices with gofpdf's core fonts.
type PDF struct {
	// FooterText is printed at the bottom of every page.
	FooterText string
}

var _ Renderer = (*PDF)(nil)

// NewPDF creates a PDF renderer.
func NewPDF() *PDF { return &PDF{} }

// ContentType implements Renderer.
func (p *PDF) ContentType() string { return "application/pdf" }

// Render implements Renderer.
func (p *PDF) Render(ctx context.Context, snap Snapshot, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inv := snap.Invoice
	if inv == nil || snap.Business == nil {
		return fmt.Errorf("render: snapshot needs an invoice and a business")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(15, 15, 15)
	if p.FooterText != "" {
		pdf.SetFooterFunc(func() {
			pdf.SetY(-15)
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(0, 10, tr(p.FooterText), "", 0, "C", false, 0, "")
		})
	}
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(110, 10, tr(snap.Business.Name), "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(70, 10, "INVOICE", "", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(110, 6, tr(snap.Business.Email), "", 0, "L", false, 0, "")
	pdf.CellFormat(70, 6, tr(inv.Number), "", 1, "R", false, 0, "")
	pdf.CellFormat(110, 6, tr(firstLine(snap.Business.Address)), "", 0, "L", false, 0, "")
	pdf.CellFormat(70, 6, "Status: "+strings.ToUpper(string(inv.DisplayStatus(snap.Now))), "", 1, "R", false, 0, "")
	pdf.Ln(6)

	// Bill to / dates
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(90, 8, "Bill To", "1", 0, "L", true, 0, "")
	pdf.CellFormat(90, 8, "Details", "1", 1, "L", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	name, email := "-", ""
	if snap.Client != nil {
		name, email = snap.Client.DisplayName(), snap.Client.Email
	}
	pdf.CellFormat(90, 7, tr(name), "LR", 0, "L", false, 0, "")
	pdf.CellFormat(90, 7, "Issued: "+inv.IssueDate.Format("02 Jan 2006"), "LR", 1, "L", false, 0, "")
	pdf.CellFormat(90, 7, tr(email), "LRB", 0, "L", false, 0, "")
	pdf.CellFormat(90, 7, "Due: "+inv.DueDate.Format("02 Jan 2006"), "LRB", 1, "L", false, 0, "")
	pdf.Ln(6)

	// Line items
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(90, 7, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 7, "Qty", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 7, "Rate", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, li := range inv.LineItems {
		pdf.CellFormat(90, 6, tr(li.Description), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, li.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, amount(li.Rate), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, amount(li.LineTotal), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	// Totals
	row := func(label string, m types.Money, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Arial", style, 10)
		pdf.CellFormat(145, 6, tr(label), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, amount(m), "", 1, "R", false, 0, "")
	}

	row("Subtotal", inv.Subtotal, false)
	for _, t := range inv.TaxBreakdown {
		row(fmt.Sprintf("%s (%s%%)", t.Name, t.Rate.String()), t.Amount, false)
	}
	if !inv.Shipping.IsZero() {
		row("Shipping", inv.Shipping, false)
	}
	if !inv.DiscountAmount.IsZero() {
		row("Discount", inv.DiscountAmount.Negate(), false)
	}
	row("Total", inv.Total, true)
	if !inv.AmountPaid.IsZero() {
		row("Paid", inv.AmountPaid.Negate(), false)
	}
	row("Balance Due", inv.BalanceDue(), true)

	if inv.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(180, 6, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(180, 5, tr(inv.Notes), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render: write pdf: %w", err)
	}
	return nil
}

// amount formats with an ISO code; core PDF fonts lack most currency glyphs.
func amount(m types.Money) string {
	if m.IsNegative() {
		return "-" + strings.ToUpper(m.Currency) + " " + m.Negate().FormatMajor()
	}
	return strings.ToUpper(m.Currency) + " " + m.FormatMajor()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
