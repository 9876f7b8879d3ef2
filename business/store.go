package business

import (
	"context"

	"github.com/xraph/tally/id"
)

// Store persists businesses.
type Store interface {
	CreateBusiness(ctx context.Context, b *Business) error
	GetBusiness(ctx context.Context, businessID id.BusinessID) (*Business, error)
	UpdateBusiness(ctx context.Context, b *Business) error
	// NextInvoiceSeq atomically increments and returns the business's
	// invoice sequence.
	NextInvoiceSeq(ctx context.Context, businessID id.BusinessID) (int64, error)
}
