package store

import (
	"context"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/usage"
)

// Store is the unified storage interface for all Tally entities. Every
// backend implements the per-aggregate stores plus the lifecycle methods.
type Store interface {
	business.Store
	client.Store
	tax.Store
	invoice.Store
	usage.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
