package tally

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/notify"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/render"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/usage"
)

// Tally is the invoice lifecycle engine.
type Tally struct {
	store    store.Store
	usage    usage.Store
	gate     *usage.Gate
	plugins  *plugin.Registry
	logger   *slog.Logger
	notifier notify.Notifier
	dispatch *notify.Dispatcher
	gateway  gateway.Gateway
	renderer render.Renderer

	// Configuration
	clock         func() time.Time
	location      *time.Location
	limits        usage.Limits
	paymentTerms  int
	publicBaseURL string
	notifyOpts    []notify.Option
	autoMigrate   bool

	started bool
}

// New creates a new Tally instance.
func New(s store.Store, opts ...Option) *Tally {
	t := &Tally{
		store:        s,
		usage:        s,
		plugins:      plugin.NewRegistry(),
		logger:       slog.Default(),
		notifier:     notify.Discard,
		renderer:     render.NewPDF(),
		clock:        time.Now,
		location:     time.UTC,
		limits:       usage.DefaultLimits(),
		paymentTerms: business.DefaultPaymentTermsDays,
		autoMigrate:  true,
	}

	for _, opt := range opts {
		opt(t)
	}

	t.gate = usage.NewGate(t.usage, t.limits)
	dopts := append([]notify.Option{
		notify.WithLogger(t.logger),
		notify.WithFailureHandler(t.notificationFailed),
	}, t.notifyOpts...)
	t.dispatch = notify.NewDispatcher(t.notifier, dopts...)

	return t
}

// Option configures a Tally instance.
type Option func(*Tally)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tally) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tally) {
		_ = t.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Tally) { t.clock = clock }
}

// WithLocation sets the zone that calendar months and issue dates are
// computed in.
func WithLocation(loc *time.Location) Option {
	return func(t *Tally) {
		if loc != nil {
			t.location = loc
		}
	}
}

// WithFreeTierLimit sets the monthly send quota of the free tier.
// usage.Unlimited lifts it.
func WithFreeTierLimit(limit int64) Option {
	return func(t *Tally) { t.limits.Free = limit }
}

// WithPaymentTerms sets the due-date offset used when neither the command nor
// the business specifies one.
func WithPaymentTerms(days int) Option {
	return func(t *Tally) {
		if days > 0 {
			t.paymentTerms = days
		}
	}
}

// WithUsageStore moves send counters out of the main store, e.g. to Redis.
func WithUsageStore(s usage.Store) Option {
	return func(t *Tally) { t.usage = s }
}

// WithNotifier sets the email collaborator and queue options.
func WithNotifier(n notify.Notifier, opts ...notify.Option) Option {
	return func(t *Tally) {
		t.notifier = n
		t.notifyOpts = append(t.notifyOpts, opts...)
	}
}

// WithGateway enables hosted checkout for businesses with a connected
// payment account.
func WithGateway(g gateway.Gateway) Option {
	return func(t *Tally) { t.gateway = g }
}

// WithRenderer replaces the PDF renderer.
func WithRenderer(r render.Renderer) Option {
	return func(t *Tally) { t.renderer = r }
}

// WithPublicBaseURL sets the base of share links, e.g.
// "https://pay.example.com". Links render as <base>/i/<token>.
func WithPublicBaseURL(base string) Option {
	return func(t *Tally) { t.publicBaseURL = strings.TrimRight(base, "/") }
}

// WithAutoMigrate controls whether Start migrates the store.
func WithAutoMigrate(enabled bool) Option {
	return func(t *Tally) { t.autoMigrate = enabled }
}

// Start migrates the store and starts the notification worker.
func (t *Tally) Start(ctx context.Context) error {
	if t.autoMigrate {
		if err := t.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize plugins
	t.plugins.EmitInit(ctx, t)

	if err := t.dispatch.Start(ctx); err != nil {
		return err
	}
	t.started = true

	t.logger.Info("tally started",
		"free_limit", t.limits.Free,
		"payment_terms_days", t.paymentTerms,
		"location", t.location.String(),
		"gateway", t.gatewayName(),
	)

	return nil
}

// Stop drains the notification worker and closes the store.
func (t *Tally) Stop() error {
	if t.started {
		t.dispatch.Stop()
	}

	ctx := context.Background()
	t.plugins.EmitShutdown(ctx)

	return t.store.Close()
}

// Store returns the underlying store.
func (t *Tally) Store() store.Store { return t.store }

// Plugins returns the plugin registry.
func (t *Tally) Plugins() *plugin.Registry { return t.plugins }

// Notifications returns the notification queue.
func (t *Tally) Notifications() *notify.Dispatcher { return t.dispatch }

// Gateway returns the configured payment gateway, or nil.
func (t *Tally) Gateway() gateway.Gateway { return t.gateway }

// Logger returns the engine logger.
func (t *Tally) Logger() *slog.Logger { return t.logger }

// Now returns the engine clock reading in the engine location.
func (t *Tally) Now() time.Time { return t.clock().In(t.location) }

// PublicURL returns the share link for token.
func (t *Tally) PublicURL(token string) string {
	if token == "" {
		return ""
	}
	return t.publicBaseURL + "/i/" + token
}

func (t *Tally) gatewayName() string {
	if t.gateway == nil {
		return "none"
	}
	return t.gateway.Name()
}

func (t *Tally) notificationFailed(ctx context.Context, job notify.Job, err error) {
	var kind, invoiceID string
	if job.Message != nil {
		kind = string(job.Message.Kind)
		if job.Message.Invoice != nil {
			invoiceID = job.Message.Invoice.ID.String()
		}
	}
	t.plugins.EmitNotificationFailed(ctx, kind, invoiceID, job.Attempts, err)
}
