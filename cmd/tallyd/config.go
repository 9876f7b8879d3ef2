package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xraph/tally/gateway/razorpay"
	"github.com/xraph/tally/notify/sendgrid"
)

// Config is the daemon configuration. Every key can be overridden with a
// TALLY_ prefixed environment variable, e.g. TALLY_SERVER_ADDR.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		BasePath        string        `mapstructure:"base_path"`
		PublicBaseURL   string        `mapstructure:"public_base_url"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Billing struct {
		FreeTierLimit    int64  `mapstructure:"free_tier_limit"`
		PaymentTermsDays int    `mapstructure:"payment_terms_days"`
		Timezone         string `mapstructure:"timezone"`
	} `mapstructure:"billing"`

	Scheduler struct {
		Enabled   bool   `mapstructure:"enabled"`
		Schedule  string `mapstructure:"schedule"`
		CatchUp   bool   `mapstructure:"catch_up"`
		BatchSize int    `mapstructure:"batch_size"`
	} `mapstructure:"scheduler"`

	Notify struct {
		QueueSize   int           `mapstructure:"queue_size"`
		MaxAttempts int           `mapstructure:"max_attempts"`
		MaxDelay    time.Duration `mapstructure:"max_delay"`
	} `mapstructure:"notify"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Prefix   string `mapstructure:"prefix"`
	} `mapstructure:"redis"`

	SendGrid sendgrid.Config `mapstructure:"sendgrid"`
	Razorpay razorpay.Config `mapstructure:"razorpay"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// loadConfig reads .env, then the optional YAML file, then the environment.
func loadConfig(path string) (*Config, error) {
	// .env is optional outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tally")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	}

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("billing.free_tier_limit", 3)
	v.SetDefault("billing.payment_terms_days", 30)
	v.SetDefault("billing.timezone", "UTC")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.schedule", "0 6 * * *")
	v.SetDefault("scheduler.catch_up", true)
	v.SetDefault("scheduler.batch_size", 100)

	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.max_attempts", 5)
	v.SetDefault("notify.max_delay", 10*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "tally:usage")

	v.SetDefault("sendgrid.api_key", "")
	v.SetDefault("sendgrid.from_email", "")
	v.SetDefault("sendgrid.from_name", "")

	v.SetDefault("razorpay.key_id", "")
	v.SetDefault("razorpay.key_secret", "")
	v.SetDefault("razorpay.webhook_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
