// Package plugin provides an extensible hook system for Tally.
// Plugins implement any subset of the hook interfaces below and are
// discovered by type assertion at registration time.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/tally/invoice"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated is called after a draft invoice or template is stored.
type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceUpdated is called after a draft is edited.
type OnInvoiceUpdated interface {
	Plugin
	OnInvoiceUpdated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceSent is called after draft → sent, and after every resend.
type OnInvoiceSent interface {
	Plugin
	OnInvoiceSent(ctx context.Context, inv *invoice.Invoice, resend bool) error
}

// OnInvoiceDeleted is called after an invoice is removed.
type OnInvoiceDeleted interface {
	Plugin
	OnInvoiceDeleted(ctx context.Context, businessID, invoiceID string) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded is called after a payment is appended.
type OnPaymentRecorded interface {
	Plugin
	OnPaymentRecorded(ctx context.Context, inv *invoice.Invoice, p *invoice.Payment) error
}

// OnPaymentOverage is called when a gateway confirms more than the
// balance due. The payment is still recorded.
type OnPaymentOverage interface {
	Plugin
	OnPaymentOverage(ctx context.Context, inv *invoice.Invoice, p *invoice.Payment, excess int64) error
}

// OnInvoicePaid is called once, when an invoice first becomes paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnQuotaExceeded is called when a send is refused by the usage gate.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, businessID, period string, used, limit int64) error
}

// ──────────────────────────────────────────────────
// Recurring billing hooks
// ──────────────────────────────────────────────────

// OnRecurringGenerated is called when a template spawns an invoice.
type OnRecurringGenerated interface {
	Plugin
	OnRecurringGenerated(ctx context.Context, template, generated *invoice.Invoice) error
}

// OnRecurringFailed is called when processing a template fails.
type OnRecurringFailed interface {
	Plugin
	OnRecurringFailed(ctx context.Context, templateID string, err error) error
}

// OnRecurringRun is called at the end of every scheduler pass.
type OnRecurringRun interface {
	Plugin
	OnRecurringRun(ctx context.Context, due, generated, failed int, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Notification hooks
// ──────────────────────────────────────────────────

// OnNotificationFailed is called when a notification exhausts its retries.
type OnNotificationFailed interface {
	Plugin
	OnNotificationFailed(ctx context.Context, kind, invoiceID string, attempts int, err error) error
}
