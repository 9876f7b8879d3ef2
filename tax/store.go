package tax

import (
	"context"

	"github.com/xraph/tally/id"
)

type Store interface {
	CreateTaxType(ctx context.Context, t *TaxType) error
	GetTaxType(ctx context.Context, taxTypeID id.TaxTypeID) (*TaxType, error)
	ListTaxTypes(ctx context.Context, businessID id.BusinessID) ([]*TaxType, error)
	UpdateTaxType(ctx context.Context, t *TaxType) error
	DeleteTaxType(ctx context.Context, taxTypeID id.TaxTypeID) error
}
