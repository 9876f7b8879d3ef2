package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/invoice"
)

// DefaultHookTimeout bounds a single plugin call.
const DefaultHookTimeout = 5 * time.Second

// Registry holds registered plugins and dispatches hooks to them. Each hook
// interface is resolved once, at Register time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit               []OnInit
	onShutdown           []OnShutdown
	onInvoiceCreated     []OnInvoiceCreated
	onInvoiceUpdated     []OnInvoiceUpdated
	onInvoiceSent        []OnInvoiceSent
	onInvoiceDeleted     []OnInvoiceDeleted
	onPaymentRecorded    []OnPaymentRecorded
	onPaymentOverage     []OnPaymentOverage
	onInvoicePaid        []OnInvoicePaid
	onQuotaExceeded      []OnQuotaExceeded
	onRecurringGenerated []OnRecurringGenerated
	onRecurringFailed    []OnRecurringFailed
	onRecurringRun       []OnRecurringRun
	onNotificationFailed []OnNotificationFailed
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin and caches the hooks it implements.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
	}
	if v, ok := p.(OnInvoiceUpdated); ok {
		r.onInvoiceUpdated = append(r.onInvoiceUpdated, v)
	}
	if v, ok := p.(OnInvoiceSent); ok {
		r.onInvoiceSent = append(r.onInvoiceSent, v)
	}
	if v, ok := p.(OnInvoiceDeleted); ok {
		r.onInvoiceDeleted = append(r.onInvoiceDeleted, v)
	}
	if v, ok := p.(OnPaymentRecorded); ok {
		r.onPaymentRecorded = append(r.onPaymentRecorded, v)
	}
	if v, ok := p.(OnPaymentOverage); ok {
		r.onPaymentOverage = append(r.onPaymentOverage, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnQuotaExceeded); ok {
		r.onQuotaExceeded = append(r.onQuotaExceeded, v)
	}
	if v, ok := p.(OnRecurringGenerated); ok {
		r.onRecurringGenerated = append(r.onRecurringGenerated, v)
	}
	if v, ok := p.(OnRecurringFailed); ok {
		r.onRecurringFailed = append(r.onRecurringFailed, v)
	}
	if v, ok := p.(OnRecurringRun); ok {
		r.onRecurringRun = append(r.onRecurringRun, v)
	}
	if v, ok := p.(OnNotificationFailed); ok {
		r.onNotificationFailed = append(r.onNotificationFailed, v)
	}

	r.logger.Debug("plugin registered", "plugin", p.Name())
	return nil
}

// Plugins returns a snapshot of every registered plugin.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// ──────────────────────────────────────────────────
// Emitters
// ──────────────────────────────────────────────────

// EmitInit notifies plugins that the engine started.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	dispatch(ctx, r, "OnInit", func() []OnInit { return r.onInit }, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown notifies plugins that the engine is stopping.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", func() []OnShutdown { return r.onShutdown }, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitInvoiceCreated emits an invoice created event.
func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Invoice) {
	dispatch(ctx, r, "OnInvoiceCreated", func() []OnInvoiceCreated { return r.onInvoiceCreated }, func(p OnInvoiceCreated) error {
		return p.OnInvoiceCreated(ctx, inv)
	})
}

// EmitInvoiceUpdated emits an invoice updated event.
func (r *Registry) EmitInvoiceUpdated(ctx context.Context, inv *invoice.Invoice) {
	dispatch(ctx, r, "OnInvoiceUpdated", func() []OnInvoiceUpdated { return r.onInvoiceUpdated }, func(p OnInvoiceUpdated) error {
		return p.OnInvoiceUpdated(ctx, inv)
	})
}

// EmitInvoiceSent emits an invoice sent event.
func (r *Registry) EmitInvoiceSent(ctx context.Context, inv *invoice.Invoice, resend bool) {
	dispatch(ctx, r, "OnInvoiceSent", func() []OnInvoiceSent { return r.onInvoiceSent }, func(p OnInvoiceSent) error {
		return p.OnInvoiceSent(ctx, inv, resend)
	})
}

// EmitInvoiceDeleted emits an invoice deleted event.
func (r *Registry) EmitInvoiceDeleted(ctx context.Context, businessID, invoiceID string) {
	dispatch(ctx, r, "OnInvoiceDeleted", func() []OnInvoiceDeleted { return r.onInvoiceDeleted }, func(p OnInvoiceDeleted) error {
		return p.OnInvoiceDeleted(ctx, businessID, invoiceID)
	})
}

// EmitPaymentRecorded emits a payment recorded event.
func (r *Registry) EmitPaymentRecorded(ctx context.Context, inv *invoice.Invoice, pay *invoice.Payment) {
	dispatch(ctx, r, "OnPaymentRecorded", func() []OnPaymentRecorded { return r.onPaymentRecorded }, func(p OnPaymentRecorded) error {
		return p.OnPaymentRecorded(ctx, inv, pay)
	})
}

// EmitPaymentOverage emits an overpayment event. excess is in minor units.
func (r *Registry) EmitPaymentOverage(ctx context.Context, inv *invoice.Invoice, pay *invoice.Payment, excess int64) {
	dispatch(ctx, r, "OnPaymentOverage", func() []OnPaymentOverage { return r.onPaymentOverage }, func(p OnPaymentOverage) error {
		return p.OnPaymentOverage(ctx, inv, pay, excess)
	})
}

// EmitInvoicePaid emits an invoice paid event.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv *invoice.Invoice) {
	dispatch(ctx, r, "OnInvoicePaid", func() []OnInvoicePaid { return r.onInvoicePaid }, func(p OnInvoicePaid) error {
		return p.OnInvoicePaid(ctx, inv)
	})
}

// EmitQuotaExceeded emits a quota exceeded event.
func (r *Registry) EmitQuotaExceeded(ctx context.Context, businessID, period string, used, limit int64) {
	dispatch(ctx, r, "OnQuotaExceeded", func() []OnQuotaExceeded { return r.onQuotaExceeded }, func(p OnQuotaExceeded) error {
		return p.OnQuotaExceeded(ctx, businessID, period, used, limit)
	})
}

// EmitRecurringGenerated emits a recurring invoice generated event.
func (r *Registry) EmitRecurringGenerated(ctx context.Context, template, generated *invoice.Invoice) {
	dispatch(ctx, r, "OnRecurringGenerated", func() []OnRecurringGenerated { return r.onRecurringGenerated }, func(p OnRecurringGenerated) error {
		return p.OnRecurringGenerated(ctx, template, generated)
	})
}

// EmitRecurringFailed emits a recurring template failure event.
func (r *Registry) EmitRecurringFailed(ctx context.Context, templateID string, err error) {
	dispatch(ctx, r, "OnRecurringFailed", func() []OnRecurringFailed { return r.onRecurringFailed }, func(p OnRecurringFailed) error {
		return p.OnRecurringFailed(ctx, templateID, err)
	})
}

// EmitRecurringRun emits a scheduler pass summary.
func (r *Registry) EmitRecurringRun(ctx context.Context, due, generated, failed int, elapsed time.Duration) {
	dispatch(ctx, r, "OnRecurringRun", func() []OnRecurringRun { return r.onRecurringRun }, func(p OnRecurringRun) error {
		return p.OnRecurringRun(ctx, due, generated, failed, elapsed)
	})
}

// EmitNotificationFailed emits a notification dead-letter event.
func (r *Registry) EmitNotificationFailed(ctx context.Context, kind, invoiceID string, attempts int, err error) {
	dispatch(ctx, r, "OnNotificationFailed", func() []OnNotificationFailed { return r.onNotificationFailed }, func(p OnNotificationFailed) error {
		return p.OnNotificationFailed(ctx, kind, invoiceID, attempts, err)
	})
}

// dispatch snapshots the hook list under the read lock and calls each plugin
// in registration order. Failures are logged, never returned.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, list func() []T, call func(T) error) {
	r.mu.RLock()
	plugins := list()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
