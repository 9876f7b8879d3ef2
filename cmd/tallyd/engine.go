package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/tally"
	audithook "github.com/xraph/tally/audit_hook"
	"github.com/xraph/tally/gateway/razorpay"
	"github.com/xraph/tally/notify"
	"github.com/xraph/tally/notify/sendgrid"
	"github.com/xraph/tally/observability"
	"github.com/xraph/tally/scheduler"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/usage"
	usageredis "github.com/xraph/tally/usage/redis"
)

// app is the wired daemon: engine, collaborators and scheduler.
type app struct {
	cfg       *Config
	logger    *slog.Logger
	engine    *tally.Tally
	scheduler *scheduler.Scheduler
	usage     usage.Store
	registry  *prometheus.Registry
	redis     *goredis.Client
}

func newApp(ctx context.Context, cfg *Config, logger *slog.Logger) (*app, error) {
	loc, err := time.LoadLocation(cfg.Billing.Timezone)
	if err != nil {
		return nil, fmt.Errorf("billing timezone %q: %w", cfg.Billing.Timezone, err)
	}

	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st := memory.New()
	a.usage = st

	opts := []tally.Option{
		tally.WithLogger(logger),
		tally.WithLocation(loc),
		tally.WithFreeTierLimit(cfg.Billing.FreeTierLimit),
		tally.WithPaymentTerms(cfg.Billing.PaymentTermsDays),
		tally.WithPublicBaseURL(cfg.Server.PublicBaseURL),
		tally.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(a.registry))),
		tally.WithPlugin(audithook.New(logRecorder(logger), audithook.WithLogger(logger))),
	}

	if cfg.Redis.Addr != "" {
		a.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs := usageredis.New(a.redis, usageredis.WithPrefix(cfg.Redis.Prefix))
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		a.usage = rs
		opts = append(opts, tally.WithUsageStore(rs))
		logger.Info("usage counters in redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	}

	retry := notify.DefaultRetryConfig()
	if cfg.Notify.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Notify.MaxAttempts
	}
	if cfg.Notify.MaxDelay > 0 {
		retry.MaxDelay = cfg.Notify.MaxDelay
	}
	notifyOpts := []notify.Option{notify.WithRetryConfig(retry), notify.WithQueueSize(cfg.Notify.QueueSize)}

	if cfg.SendGrid.APIKey != "" {
		sg, err := sendgrid.New(cfg.SendGrid, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tally.WithNotifier(sg, notifyOpts...))
	} else {
		logger.Warn("sendgrid not configured, emails are discarded")
		opts = append(opts, tally.WithNotifier(notify.Discard, notifyOpts...))
	}

	if cfg.Razorpay.KeyID != "" {
		gw, err := razorpay.New(cfg.Razorpay)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tally.WithGateway(gw))
	}

	a.engine = tally.New(st, opts...)

	a.scheduler = scheduler.New(a.engine,
		scheduler.WithLogger(logger),
		scheduler.WithSchedule(cfg.Scheduler.Schedule),
		scheduler.WithLocation(loc),
		scheduler.WithCatchUp(cfg.Scheduler.CatchUp),
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
		scheduler.WithObserver(scheduler.PluginObserver(a.engine.Plugins())),
	)

	return a, nil
}

func (a *app) close() {
	if err := a.engine.Stop(); err != nil {
		a.logger.Error("engine stop", "error", err)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// logRecorder writes audit events to the structured log.
func logRecorder(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		attrs := []any{
			"action", evt.Action,
			"resource", evt.Resource,
			"resource_id", evt.ResourceID,
			"outcome", evt.Outcome,
			"severity", evt.Severity,
		}
		if evt.Reason != "" {
			attrs = append(attrs, "reason", evt.Reason)
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, "meta."+k, v)
		}
		logger.Info("audit", attrs...)
		return nil
	})
}
