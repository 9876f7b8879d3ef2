package extension

// Config holds the Tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// DisableRoutes prevents building the public HTTP handler.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableScheduler prevents the recurring invoice scheduler from starting.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// BasePath is the URL prefix for public routes (default: "/tally").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// PublicBaseURL is the origin share links are rendered against,
	// e.g. "https://pay.example.com".
	PublicBaseURL string `json:"public_base_url" mapstructure:"public_base_url" yaml:"public_base_url"`

	// FreeTierLimit is the monthly send quota of free businesses (default: 3).
	// A negative value lifts the limit.
	FreeTierLimit int64 `json:"free_tier_limit" mapstructure:"free_tier_limit" yaml:"free_tier_limit"`

	// PaymentTermsDays is the due-date offset used when a business has none
	// (default: 30).
	PaymentTermsDays int `json:"payment_terms_days" mapstructure:"payment_terms_days" yaml:"payment_terms_days"`

	// Schedule is the cron spec of the recurring pass (default: "0 6 * * *").
	Schedule string `json:"schedule" mapstructure:"schedule" yaml:"schedule"`

	// Timezone is the IANA zone periods and schedules are computed in
	// (default: "UTC").
	Timezone string `json:"timezone" mapstructure:"timezone" yaml:"timezone"`

	// StoreDriver selects the grove-backed store built for a database passed
	// with WithGroveDB: "postgres", "sqlite" or "mongo".
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:         "/tally",
		FreeTierLimit:    3,
		PaymentTermsDays: 30,
		Schedule:         "0 6 * * *",
		Timezone:         "UTC",
		StoreDriver:      "postgres",
	}
}
