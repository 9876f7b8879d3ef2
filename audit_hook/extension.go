// Package audithook bridges Tally lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnInvoiceCreated     = (*Extension)(nil)
	_ plugin.OnInvoiceUpdated     = (*Extension)(nil)
	_ plugin.OnInvoiceSent        = (*Extension)(nil)
	_ plugin.OnInvoiceDeleted     = (*Extension)(nil)
	_ plugin.OnPaymentRecorded    = (*Extension)(nil)
	_ plugin.OnPaymentOverage     = (*Extension)(nil)
	_ plugin.OnInvoicePaid        = (*Extension)(nil)
	_ plugin.OnQuotaExceeded      = (*Extension)(nil)
	_ plugin.OnRecurringGenerated = (*Extension)(nil)
	_ plugin.OnRecurringFailed    = (*Extension)(nil)
	_ plugin.OnNotificationFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tally lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error {
	if inv.IsTemplate() {
		return e.record(ctx, ActionTemplateCreated, SeverityInfo, OutcomeSuccess,
			ResourceTemplate, inv.ID.String(), CategoryRecurring, nil,
			"business_id", inv.BusinessID.String(),
			"frequency", string(inv.Recurrence.Frequency),
		)
	}
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		"business_id", inv.BusinessID.String(),
		"invoice_number", inv.Number,
	)
}

// OnInvoiceUpdated implements plugin.OnInvoiceUpdated.
func (e *Extension) OnInvoiceUpdated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceUpdated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		"business_id", inv.BusinessID.String(),
		"total", inv.Total.Amount,
	)
}

// OnInvoiceSent implements plugin.OnInvoiceSent.
func (e *Extension) OnInvoiceSent(ctx context.Context, inv *invoice.Invoice, resend bool) error {
	action := ActionInvoiceSent
	if resend {
		action = ActionInvoiceResent
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryBilling, nil,
		"business_id", inv.BusinessID.String(),
		"invoice_number", inv.Number,
		"total", inv.Total.Amount,
		"currency", inv.Currency,
	)
}

// OnInvoiceDeleted implements plugin.OnInvoiceDeleted.
func (e *Extension) OnInvoiceDeleted(ctx context.Context, businessID, invoiceID string) error {
	return e.record(ctx, ActionInvoiceDeleted, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, invoiceID, CategoryBilling, nil,
		"business_id", businessID,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRecorded implements plugin.OnPaymentRecorded.
func (e *Extension) OnPaymentRecorded(ctx context.Context, inv *invoice.Invoice, p *invoice.Payment) error {
	return e.record(ctx, ActionPaymentRecorded, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"invoice_id", inv.ID.String(),
		"amount", p.Amount.Amount,
		"method", string(p.Method),
		"reference", p.Reference,
		"balance_due", inv.BalanceDue().Amount,
	)
}

// OnPaymentOverage implements plugin.OnPaymentOverage.
func (e *Extension) OnPaymentOverage(ctx context.Context, inv *invoice.Invoice, p *invoice.Payment, excess int64) error {
	return e.record(ctx, ActionPaymentOverage, SeverityWarning, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"invoice_id", inv.ID.String(),
		"amount", p.Amount.Amount,
		"excess", excess,
		"reference", p.Reference,
	)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), CategoryPayment, nil,
		"business_id", inv.BusinessID.String(),
		"amount_paid", inv.AmountPaid.Amount,
	)
}

// ──────────────────────────────────────────────────
// Usage hooks
// ──────────────────────────────────────────────────

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (e *Extension) OnQuotaExceeded(ctx context.Context, businessID, period string, used, limit int64) error {
	return e.record(ctx, ActionQuotaExceeded, SeverityWarning, OutcomeFailure,
		ResourceUsage, businessID, CategoryAccess, nil,
		"period", period,
		"used", used,
		"limit", limit,
	)
}

// ──────────────────────────────────────────────────
// Recurring billing hooks
// ──────────────────────────────────────────────────

// OnRecurringGenerated implements plugin.OnRecurringGenerated.
func (e *Extension) OnRecurringGenerated(ctx context.Context, template, generated *invoice.Invoice) error {
	return e.record(ctx, ActionRecurringGenerated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, generated.ID.String(), CategoryRecurring, nil,
		"template_id", template.ID.String(),
		"business_id", template.BusinessID.String(),
	)
}

// OnRecurringFailed implements plugin.OnRecurringFailed.
func (e *Extension) OnRecurringFailed(ctx context.Context, templateID string, err error) error {
	return e.record(ctx, ActionRecurringFailed, SeverityError, OutcomeFailure,
		ResourceTemplate, templateID, CategoryRecurring, err,
	)
}

// ──────────────────────────────────────────────────
// Notification hooks
// ──────────────────────────────────────────────────

// OnNotificationFailed implements plugin.OnNotificationFailed.
func (e *Extension) OnNotificationFailed(ctx context.Context, kind, invoiceID string, attempts int, err error) error {
	return e.record(ctx, ActionNotificationFailed, SeverityError, OutcomeFailure,
		ResourceNotification, invoiceID, CategoryIntegration, err,
		"kind", kind,
		"attempts", attempts,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
