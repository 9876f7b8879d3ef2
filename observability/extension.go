// Package observability provides a metrics extension for Tally that records
// invoice lifecycle counts through a pluggable MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceUpdated     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceSent        = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDeleted     = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRecorded    = (*MetricsExtension)(nil)
	_ plugin.OnPaymentOverage     = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid        = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExceeded      = (*MetricsExtension)(nil)
	_ plugin.OnRecurringGenerated = (*MetricsExtension)(nil)
	_ plugin.OnRecurringFailed    = (*MetricsExtension)(nil)
	_ plugin.OnRecurringRun       = (*MetricsExtension)(nil)
	_ plugin.OnNotificationFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tally plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceCreated  Counter
	InvoiceUpdated  Counter
	InvoiceSent     Counter
	InvoiceResent   Counter
	InvoiceDeleted  Counter
	InvoicePaid     Counter
	InvoiceTotal    Histogram
	TemplateCreated Counter

	// Payment metrics
	PaymentRecorded Counter
	PaymentGateway  Counter
	PaymentAmount   Histogram
	PaymentOverage  Counter

	// Usage metrics
	QuotaExceeded Counter

	// Recurring metrics
	RecurringGenerated Counter
	RecurringFailed    Counter
	RecurringDue       Histogram
	RecurringLatency   Histogram

	// Notification metrics
	NotificationFailed Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		InvoiceCreated:  factory.Counter("tally.invoice.created"),
		InvoiceUpdated:  factory.Counter("tally.invoice.updated"),
		InvoiceSent:     factory.Counter("tally.invoice.sent"),
		InvoiceResent:   factory.Counter("tally.invoice.resent"),
		InvoiceDeleted:  factory.Counter("tally.invoice.deleted"),
		InvoicePaid:     factory.Counter("tally.invoice.paid"),
		InvoiceTotal:    factory.Histogram("tally.invoice.total_minor"),
		TemplateCreated: factory.Counter("tally.template.created"),

		PaymentRecorded: factory.Counter("tally.payment.recorded"),
		PaymentGateway:  factory.Counter("tally.payment.gateway"),
		PaymentAmount:   factory.Histogram("tally.payment.amount_minor"),
		PaymentOverage:  factory.Counter("tally.payment.overage"),

		QuotaExceeded: factory.Counter("tally.usage.quota_exceeded"),

		RecurringGenerated: factory.Counter("tally.recurring.generated"),
		RecurringFailed:    factory.Counter("tally.recurring.failed"),
		RecurringDue:       factory.Histogram("tally.recurring.due"),
		RecurringLatency:   factory.Histogram("tally.recurring.latency_ms"),

		NotificationFailed: factory.Counter("tally.notification.failed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, inv *invoice.Invoice) error {
	if inv.IsTemplate() {
		m.TemplateCreated.Inc()
		return nil
	}
	m.InvoiceCreated.Inc()
	return nil
}

// OnInvoiceUpdated implements plugin.OnInvoiceUpdated.
func (m *MetricsExtension) OnInvoiceUpdated(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceUpdated.Inc()
	return nil
}

// OnInvoiceSent implements plugin.OnInvoiceSent.
func (m *MetricsExtension) OnInvoiceSent(_ context.Context, inv *invoice.Invoice, resend bool) error {
	if resend {
		m.InvoiceResent.Inc()
		return nil
	}
	m.InvoiceSent.Inc()
	m.InvoiceTotal.Observe(float64(inv.Total.Amount))
	return nil
}

// OnInvoiceDeleted implements plugin.OnInvoiceDeleted.
func (m *MetricsExtension) OnInvoiceDeleted(_ context.Context, _, _ string) error {
	m.InvoiceDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (m *MetricsExtension) OnPaymentRecorded(_ context.Context, _ *invoice.Invoice, p *invoice.Payment) error {
	m.PaymentRecorded.Inc()
	if p.Method == invoice.MethodGateway {
		m.PaymentGateway.Inc()
	}
	m.PaymentAmount.Observe(float64(p.Amount.Amount))
	return nil
}

// OnPaymentOverage implements plugin.OnPaymentOverage.
func (m *MetricsExtension) OnPaymentOverage(_ context.Context, _ *invoice.Invoice, _ *invoice.Payment, _ int64) error {
	m.PaymentOverage.Inc()
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ *invoice.Invoice) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, _, _ string, _, _ int64) error {
	m.QuotaExceeded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Recurring billing hooks
// ──────────────────────────────────────────────────

// OnRecurringGenerated implements plugin.OnRecurringGenerated.
func (m *MetricsExtension) OnRecurringGenerated(_ context.Context, _, _ *invoice.Invoice) error {
	m.RecurringGenerated.Inc()
	return nil
}

// OnRecurringFailed implements plugin.OnRecurringFailed.
func (m *MetricsExtension) OnRecurringFailed(_ context.Context, _ string, _ error) error {
	m.RecurringFailed.Inc()
	return nil
}

// OnRecurringRun implements plugin.OnRecurringRun.
func (m *MetricsExtension) OnRecurringRun(_ context.Context, due, _, _ int, elapsed time.Duration) error {
	m.RecurringDue.Observe(float64(due))
	m.RecurringLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnNotificationFailed implements plugin.OnNotificationFailed.
func (m *MetricsExtension) OnNotificationFailed(_ context.Context, _, _ string, _ int, _ error) error {
	m.NotificationFailed.Inc()
	return nil
}
