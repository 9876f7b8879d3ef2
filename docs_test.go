package tally_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally"
	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from the package docs
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		tl := tally.New(store,
			tally.WithLogger(slog.Default()),
			tally.WithFreeTierLimit(3),
			tally.WithPublicBaseURL("https://pay.example.com"),
		)

		ctx := context.Background()
		if err := tl.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer tl.Stop()

		biz := &business.Business{Name: "Acme Studio", Email: "billing@acme.test"}
		if err := tl.CreateBusiness(ctx, biz); err != nil {
			t.Fatal(err)
		}

		cl := &client.Client{BusinessID: biz.ID, Name: "Road Runner", Email: "rr@example.test"}
		if err := tl.CreateClient(ctx, cl); err != nil {
			t.Fatal(err)
		}

		inv, err := tl.CreateInvoice(ctx, tally.CreateInvoiceCommand{
			BusinessID: biz.ID,
			ClientID:   cl.ID,
			Items: []tally.LineItemInput{
				{Description: "Design", Quantity: decimal.NewFromInt(2), Rate: 5000},
			},
			Shipping: 1000,
		})
		if err != nil {
			t.Fatal(err)
		}

		res, err := tl.SendInvoice(ctx, biz.ID, inv.ID)
		if tally.IsQuotaExceeded(err) {
			t.Fatal("fresh business should have quota left")
		}
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Invoice %s sent, %d of %d sends used\n",
			res.Invoice.Number, res.Usage.Count, res.Usage.Limit)

		paid, err := tl.RecordPayment(ctx, tally.RecordPaymentCommand{
			BusinessID: biz.ID,
			InvoiceID:  inv.ID,
			Amount:     5000,
			Method:     invoice.MethodBankTransfer,
		})
		if err != nil {
			t.Fatal(err)
		}
		if paid.Invoice.Status != invoice.StatusPartiallyPaid {
			t.Fatalf("status = %s, want partially_paid", paid.Invoice.Status)
		}

		log.Printf("Balance due: %s, share at %s\n",
			paid.Invoice.BalanceDue().String(), tl.PublicURL(inv.ShareToken))
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)   // $49.00
		_ = types.INR(9900)   // ₹99.00
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)                               // $3.00
		_ = m2.Subtract(m1)                          // $1.00
		_ = m1.Mul(decimal.RequireFromString("2.5")) // $2.50

		// Comparison
		if !m1.LessThan(m2) {
			t.Fatal("expected m1 < m2")
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}

func TestExports(t *testing.T) {
	total := tally.Sum("usd", tally.USD(100), tally.USD(250))
	if total.Amount != 350 {
		t.Fatalf("Sum = %d, want 350", total.Amount)
	}

	biz := &business.Business{Name: "Acme"}
	tl := tally.New(memory.New())
	if err := tl.CreateBusiness(context.Background(), biz); err != nil {
		t.Fatal(err)
	}
	parsed, err := tally.ParseID(biz.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed.String() != biz.ID.String() {
		t.Fatalf("ParseID = %s, want %s", parsed, biz.ID)
	}
}
