package render_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/render"
	"github.com/xraph/tally/types"
)

func TestPDFRender(t *testing.T) {
	inv := &invoice.Invoice{
		Number:    "INV-0001",
		Status:    invoice.StatusSent,
		Currency:  "usd",
		IssueDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		DueDate:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		LineItems: []invoice.LineItem{{
			Description: "Design work",
			Quantity:    decimal.NewFromInt(2),
			Rate:        types.USD(5000),
			LineTotal:   types.USD(10000),
		}},
		TaxBreakdown: []invoice.TaxLine{{Name: "VAT", Rate: decimal.NewFromInt(10), Amount: types.USD(1000)}},
		Subtotal:     types.USD(10000),
		TaxAmount:    types.USD(1000),
		Total:        types.USD(11000),
		AmountPaid:   types.USD(0),
		Notes:        "Thanks for your business.",
	}

	var buf bytes.Buffer
	err := render.NewPDF().Render(context.Background(), render.Snapshot{
		Invoice:  inv,
		Business: &business.Business{Name: "Acme Studio", Email: "hi@acme.test"},
		Client:   &client.Client{Name: "Ada Lovelace"},
		Now:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	}, &buf)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", buf.Bytes()[:min(8, buf.Len())])
	}
}

func TestPDFRenderRequiresBusiness(t *testing.T) {
	var buf bytes.Buffer
	err := render.NewPDF().Render(context.Background(), render.Snapshot{Invoice: &invoice.Invoice{}}, &buf)
	if err == nil {
		t.Error("expected error without business")
	}
}
