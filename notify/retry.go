package notify

import (
	"errors"
	"math"
	"time"
)

// RetryConfig configures delivery retries.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay" mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay" mapstructure:"max_delay" yaml:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      30 * time.Second,
		MaxDelay:          30 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements capped exponential backoff.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling unset fields with defaults.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	return &RetryPolicy{config: config}
}

// Config returns the effective configuration.
func (p *RetryPolicy) Config() RetryConfig { return p.config }

// ShouldRetry reports whether a job that failed after attempts tries gets
// another one. Permanent errors are never retried.
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil || attempts >= p.config.MaxAttempts {
		return false
	}
	return !errors.Is(err, ErrNoRecipient) && !errors.Is(err, ErrUnknownKind)
}

// NextRetryDelay returns initialDelay × multiplier^(attempts-1), capped.
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}
