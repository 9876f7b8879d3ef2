package extension

import (
	"github.com/xraph/grove"

	"github.com/xraph/tally"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/store"
)

// Option configures the Tally Forge extension.
type Option func(*Extension)

// WithStore sets the store for the tally engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from a grove database. driver is one of
// "postgres", "sqlite" or "mongo"; an empty driver uses Config.StoreDriver.
func WithGroveDB(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.groveDriver = driver
	}
}

// WithTallyOption passes a tally.Option through to the underlying engine.
func WithTallyOption(opt tally.Option) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, opt)
	}
}

// WithPlugin registers a tally plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, tally.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents building the public HTTP handler.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableScheduler keeps the recurring scheduler stopped.
func WithDisableScheduler() Option {
	return func(e *Extension) { e.config.DisableScheduler = true }
}

// WithBasePath sets the URL prefix for public routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithPublicBaseURL sets the origin share links are rendered against.
func WithPublicBaseURL(url string) Option {
	return func(e *Extension) { e.config.PublicBaseURL = url }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithFreeTierLimit sets the monthly send quota of free businesses.
func WithFreeTierLimit(limit int64) Option {
	return func(e *Extension) { e.config.FreeTierLimit = limit }
}

// WithPaymentTerms sets the default due-date offset in days.
func WithPaymentTerms(days int) Option {
	return func(e *Extension) { e.config.PaymentTermsDays = days }
}

// WithSchedule sets the cron spec of the recurring pass.
func WithSchedule(spec string) Option {
	return func(e *Extension) { e.config.Schedule = spec }
}

// WithTimezone sets the zone periods and schedules are computed in.
func WithTimezone(name string) Option {
	return func(e *Extension) { e.config.Timezone = name }
}
