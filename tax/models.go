// Package tax defines the per-business tax catalog.
package tax

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// TaxType is a flat percentage applied to line items that reference it.
// At most one TaxType per business has IsDefault set.
type TaxType struct {
	types.Entity
	ID         id.TaxTypeID    `json:"id"`
	BusinessID id.BusinessID   `json:"business_id"`
	Name       string          `json:"name"`
	Rate       decimal.Decimal `json:"rate"` // percent, e.g. 18 for 18%
	IsDefault  bool            `json:"is_default"`
}

// Catalog indexes a business's tax types by id.
type Catalog struct {
	byID map[string]*TaxType
	def  *TaxType
}

// NewCatalog builds a catalog. If several entries claim to be the default,
// the first one wins.
func NewCatalog(taxTypes []*TaxType) *Catalog {
	c := &Catalog{byID: make(map[string]*TaxType, len(taxTypes))}
	for _, t := range taxTypes {
		c.byID[t.ID.String()] = t
		if t.IsDefault && c.def == nil {
			c.def = t
		}
	}
	return c
}

// Lookup resolves a tax type id. Nil ids and unknown ids resolve to false.
func (c *Catalog) Lookup(taxTypeID id.TaxTypeID) (*TaxType, bool) {
	if c == nil || taxTypeID.IsNil() {
		return nil, false
	}
	t, ok := c.byID[taxTypeID.String()]
	return t, ok
}

// Default returns the business's default tax type, if any.
func (c *Catalog) Default() (*TaxType, bool) {
	if c == nil || c.def == nil {
		return nil, false
	}
	return c.def, true
}
