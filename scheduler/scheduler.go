// Package scheduler drives recurring invoice generation.
//
// A Scheduler owns a cron trigger and a catch-up pass at start. Both call
// RunOnce, and passes never overlap. Within a pass templates are processed
// one at a time; a failing template is recorded and the pass moves on.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xraph/tally"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plugin"
)

// DefaultSchedule runs once a day at 06:00 in the scheduler location.
const DefaultSchedule = "0 6 * * *"

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// TemplateSource finds due templates and turns one into an occurrence.
// *tally.Tally implements it.
type TemplateSource interface {
	DueTemplates(ctx context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error)
	GenerateFromTemplate(ctx context.Context, tmpl *invoice.Invoice, now time.Time) (*tally.Occurrence, error)
}

// Generated is a successfully processed template.
type Generated struct {
	TemplateID string    `json:"template_id"`
	InvoiceID  string    `json:"invoice_id"`
	Number     string    `json:"invoice_number"`
	Sent       bool      `json:"sent"`
	Reason     string    `json:"reason,omitempty"`
	NextDate   time.Time `json:"next_date"`
}

// Failure is a template whose processing returned an error.
type Failure struct {
	TemplateID string `json:"template_id"`
	Error      string `json:"error"`
}

// Report summarizes one pass.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Due       int           `json:"due"`
	Generated []Generated   `json:"generated"`
	Failed    []Failure     `json:"failed"`
}

// Observer receives every finished report.
type Observer func(ctx context.Context, r *Report)

// Scheduler runs recurring generation passes.
type Scheduler struct {
	source    TemplateSource
	logger    *slog.Logger
	schedule  string
	location  *time.Location
	catchUp   bool
	batchSize int
	clock     func() time.Time
	observer  Observer

	runMu sync.Mutex

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithSchedule sets the cron spec of the daily trigger.
func WithSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithLocation sets the zone the cron spec is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithCatchUp toggles the pass run by Start.
func WithCatchUp(enabled bool) Option {
	return func(s *Scheduler) { s.catchUp = enabled }
}

// WithBatchSize bounds how many due templates are fetched per query.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithObserver registers a callback for finished passes.
func WithObserver(fn Observer) Option {
	return func(s *Scheduler) { s.observer = fn }
}

// PluginObserver forwards pass summaries to the OnRecurringRun hook.
func PluginObserver(reg *plugin.Registry) Observer {
	return func(ctx context.Context, r *Report) {
		reg.EmitRecurringRun(ctx, r.Due, len(r.Generated), len(r.Failed), r.Elapsed)
	}
}

// New creates a scheduler over source.
func New(source TemplateSource, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:    source,
		logger:    slog.Default(),
		schedule:  DefaultSchedule,
		location:  time.UTC,
		catchUp:   true,
		batchSize: 100,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the catch-up pass in the background and registers the cron
// trigger. The cron spec is validated before anything runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithLocation(s.location))
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if _, err := c.AddFunc(s.schedule, func() { s.trigger(runCtx, "cron") }); err != nil {
		cancel()
		return err
	}

	s.cron = c
	s.cancel = cancel

	if s.catchUp {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.trigger(runCtx, "startup")
		}()
	}
	c.Start()

	s.logger.Info("recurring scheduler started",
		"schedule", s.schedule,
		"location", s.location.String(),
		"catch_up", s.catchUp,
	)
	return nil
}

// Stop removes the trigger and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.wg.Wait()
	cancel()
	s.logger.Info("recurring scheduler stopped")
}

// Next reports the next cron fire time, or zero when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) trigger(ctx context.Context, source string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recurring pass panicked",
				"trigger", source,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("recurring pass failed", "trigger", source, "error", err)
		return
	}
	s.logger.Info("recurring pass finished",
		"trigger", source,
		"due", report.Due,
		"generated", len(report.Generated),
		"failed", len(report.Failed),
		"elapsed", report.Elapsed,
	)
}

// RunOnce processes every template due now. It returns an error only when
// the due query itself fails; per-template errors are in the report.
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	now := s.clock()
	report := &Report{StartedAt: now, Generated: []Generated{}, Failed: []Failure{}}
	seen := make(map[string]struct{})

	for {
		// Templates that failed stay due, so each query widens past the
		// ones already visited.
		limit := len(seen) + s.batchSize
		due, err := s.source.DueTemplates(ctx, now, limit)
		if err != nil {
			return nil, err
		}

		fresh := 0
		for _, tmpl := range due {
			key := tmpl.ID.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			fresh++
			report.Due++
			s.process(ctx, tmpl, now, report)
		}

		if fresh == 0 || len(due) < limit || ctx.Err() != nil {
			break
		}
	}

	report.Elapsed = time.Since(now)
	if s.observer != nil {
		s.observer(ctx, report)
	}
	return report, nil
}

func (s *Scheduler) process(ctx context.Context, tmpl *invoice.Invoice, now time.Time, report *Report) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recurring template panicked", "template_id", tmpl.ID.String(), "panic", r)
			report.Failed = append(report.Failed, Failure{TemplateID: tmpl.ID.String(), Error: "panic"})
		}
	}()

	occ, err := s.source.GenerateFromTemplate(ctx, tmpl, now)
	if err != nil {
		s.logger.Warn("recurring template failed",
			"template_id", tmpl.ID.String(),
			"error", err,
		)
		report.Failed = append(report.Failed, Failure{TemplateID: tmpl.ID.String(), Error: err.Error()})
		return
	}

	g := Generated{
		TemplateID: tmpl.ID.String(),
		InvoiceID:  occ.Invoice.ID.String(),
		Number:     occ.Invoice.Number,
		Sent:       occ.Sent,
		NextDate:   occ.NextDate,
	}
	if occ.SendError != nil {
		g.Reason = occ.SendError.Error()
	}
	report.Generated = append(report.Generated, g)
}
