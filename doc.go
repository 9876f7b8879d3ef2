// Package tally provides an invoice lifecycle and recurring billing engine
// for Go applications.
//
// Tally is designed as a library, not a service. Import it into your Go
// application, or run it behind the bundled tallyd daemon. It provides:
//
//   - Draft, send, partial and full payment transitions with conditional writes
//   - Exact totals in integer minor units, with decimal quantities and tax rates
//   - A monthly send quota per business tier, reserved atomically on send
//   - Recurring templates that spawn and send invoices on a daily schedule
//   - Unguessable share links with a sanitized public projection and PDF
//   - Pluggable email (SendGrid) and checkout (Razorpay) collaborators
//   - Lifecycle hooks for audit trails and Prometheus metrics
//
// # Quick Start
//
// Create a tally instance with your preferred store:
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/store/postgres"
//	)
//
//	t := tally.New(postgres.New(db),
//	    tally.WithFreeTierLimit(3),
//	    tally.WithPublicBaseURL("https://pay.example.com"),
//	)
//
//	// Migrates the store and starts the notification worker.
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
// # Core Concepts
//
// A business issues invoices to its clients. Invoices start as drafts:
//
//	inv, err := t.CreateInvoice(ctx, tally.CreateInvoiceCommand{
//	    BusinessID: biz.ID,
//	    ClientID:   client.ID,
//	    Items: []tally.LineItemInput{
//	        {Description: "Design", Quantity: decimal.NewFromInt(2), Rate: 5000},
//	    },
//	    Shipping: 1000,
//	})
//
// Sending validates the draft, reserves one unit of the month's quota and
// moves it to sent. Free businesses get three sends per calendar month:
//
//	res, err := t.SendInvoice(ctx, biz.ID, inv.ID)
//	if tally.IsQuotaExceeded(err) {
//	    // the invoice stays a draft
//	}
//
// Payments move a sent invoice to partially_paid and then paid:
//
//	_, err = t.RecordPayment(ctx, tally.RecordPaymentCommand{
//	    BusinessID: biz.ID,
//	    InvoiceID:  inv.ID,
//	    Amount:     5000,
//	    Method:     invoice.MethodBankTransfer,
//	})
//
// Overdue is never stored. It is derived on read for sent and partially paid
// invoices whose due date has passed.
//
// # Recurring billing
//
// An invoice created with a Recurrence is a template. It is never sent
// itself; the scheduler package spawns a fresh invoice from it on each due
// date and advances the template.
//
// # Money
//
// All monetary values are integer amounts in the smallest currency unit
// (cents for USD, paise for INR). Quantities and tax rates are decimals and
// products are rounded half away from zero back to the minor unit.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	biz_01h2xcejqtf2nbrexx3vqjhp41  // Business ID
//	inv_01h455vb4pex5vsknk084sn02q  // Invoice ID
//	pay_01h455vb4pex5vsknk084sn02q  // Payment ID
package tally
