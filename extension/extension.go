// Package extension provides the Forge extension adapter for Tally.
//
// It implements the forge.Extension interface to integrate Tally
// into a Forge application with DI registration, the recurring
// scheduler and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tally" or "tally" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/tally"
	"github.com/xraph/tally/api"
	"github.com/xraph/tally/scheduler"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/mongo"
	"github.com/xraph/tally/store/postgres"
	"github.com/xraph/tally/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tally"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Invoice lifecycle and recurring billing engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Tally as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *tally.Tally
	scheduler   *scheduler.Scheduler
	handler     http.Handler
	store       store.Store
	groveDB     *grove.DB
	groveDriver string
	tallyOpts   []tally.Option
}

// New creates a new Tally Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Tally instance.
// This is nil until Register is called.
func (e *Extension) Engine() *tally.Tally { return e.engine }

// Scheduler returns the recurring scheduler, or nil when disabled.
func (e *Extension) Scheduler() *scheduler.Scheduler { return e.scheduler }

// Handler returns the public HTTP handler mounted under Config.BasePath,
// or nil when routes are disabled.
func (e *Extension) Handler() http.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the tally engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.resolveStore(); err != nil {
		return err
	}

	opts, err := e.buildTallyOpts()
	if err != nil {
		return err
	}
	e.engine = tally.New(e.store, opts...)

	if !e.config.DisableScheduler {
		e.scheduler = scheduler.New(e.engine,
			scheduler.WithSchedule(e.config.Schedule),
			scheduler.WithLocation(e.location()),
			scheduler.WithLogger(e.engine.Logger()),
			scheduler.WithObserver(scheduler.PluginObserver(e.engine.Plugins())),
		)
	}

	if !e.config.DisableRoutes {
		e.handler = api.NewRouter(e.engine, e.config.BasePath, api.WithLogger(e.engine.Logger()))
	}

	return vessel.Provide(fapp.Container(), func() (*tally.Tally, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tally: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	if e.scheduler != nil {
		if err := e.scheduler.Start(ctx); err != nil {
			return err
		}
		e.Logger().Info("tally: recurring scheduler started",
			forge.F("schedule", e.config.Schedule),
			forge.F("next_run", e.scheduler.Next()),
		)
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.scheduler != nil {
		e.scheduler.Stop()
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tally: store not initialized")
	}
	return e.store.Ping(ctx)
}

// resolveStore picks the programmatic store, then a grove-backed store,
// then the in-memory store.
func (e *Extension) resolveStore() error {
	if e.store != nil {
		return nil
	}
	if e.groveDB == nil {
		e.store = memory.New()
		return nil
	}

	driver := e.groveDriver
	if driver == "" {
		driver = e.config.StoreDriver
	}
	s, err := storeForDriver(e.groveDB, driver)
	if err != nil {
		return err
	}
	e.store = s
	e.Logger().Debug("tally: using grove store", forge.F("driver", driver))
	return nil
}

func storeForDriver(db *grove.DB, driver string) (store.Store, error) {
	switch driver {
	case "postgres", "pg":
		return postgres.New(db), nil
	case "sqlite", "sqlite3":
		return sqlite.New(db), nil
	case "mongo", "mongodb":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("tally: unknown store driver %q", driver)
	}
}

// buildTallyOpts constructs tally.Option values from the resolved config.
func (e *Extension) buildTallyOpts() ([]tally.Option, error) {
	opts := make([]tally.Option, 0, len(e.tallyOpts)+6)

	loc, err := time.LoadLocation(e.config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("tally: timezone %q: %w", e.config.Timezone, err)
	}

	opts = append(opts,
		tally.WithLocation(loc),
		tally.WithFreeTierLimit(e.config.FreeTierLimit),
		tally.WithPaymentTerms(e.config.PaymentTermsDays),
		tally.WithAutoMigrate(!e.config.DisableMigrate),
	)
	if e.config.PublicBaseURL != "" {
		opts = append(opts, tally.WithPublicBaseURL(e.config.PublicBaseURL))
	}

	// Pass-through options win over config-derived ones.
	opts = append(opts, e.tallyOpts...)

	return opts, nil
}

func (e *Extension) location() *time.Location {
	loc, err := time.LoadLocation(e.config.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tally: configuration is required but not found in config files; " +
				"ensure 'extensions.tally' or 'tally' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tally: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("base_path", e.config.BasePath),
		forge.F("free_tier_limit", e.config.FreeTierLimit),
		forge.F("payment_terms_days", e.config.PaymentTermsDays),
		forge.F("schedule", e.config.Schedule),
		forge.F("timezone", e.config.Timezone),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.tally", "tally"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("tally: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("tally: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.FreeTierLimit == 0 {
		cfg.FreeTierLimit = defaults.FreeTierLimit
	}
	if cfg.PaymentTermsDays == 0 {
		cfg.PaymentTermsDays = defaults.PaymentTermsDays
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaults.Schedule
	}
	if cfg.Timezone == "" {
		cfg.Timezone = defaults.Timezone
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = defaults.StoreDriver
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableScheduler {
		yamlConfig.DisableScheduler = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.PublicBaseURL == "" {
		yamlConfig.PublicBaseURL = programmaticConfig.PublicBaseURL
	}
	if yamlConfig.Schedule == "" {
		yamlConfig.Schedule = programmaticConfig.Schedule
	}
	if yamlConfig.Timezone == "" {
		yamlConfig.Timezone = programmaticConfig.Timezone
	}
	if yamlConfig.StoreDriver == "" {
		yamlConfig.StoreDriver = programmaticConfig.StoreDriver
	}

	if yamlConfig.FreeTierLimit == 0 {
		yamlConfig.FreeTierLimit = programmaticConfig.FreeTierLimit
	}
	if yamlConfig.PaymentTermsDays == 0 {
		yamlConfig.PaymentTermsDays = programmaticConfig.PaymentTermsDays
	}

	return mergeWithDefaults(yamlConfig)
}
