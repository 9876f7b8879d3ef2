package tally

import (
	"context"
	"strings"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/types"
)

// CreateTaxType adds a tax type to a business's catalog. Creating a default
// clears the previous default.
func (t *Tally) CreateTaxType(ctx context.Context, tt *tax.TaxType) error {
	if err := validateTaxType(tt); err != nil {
		return err
	}
	if _, err := t.loadBusiness(ctx, tt.BusinessID); err != nil {
		return err
	}
	if tt.ID.IsNil() {
		tt.ID = id.NewTaxTypeID()
	}
	tt.Entity = types.NewEntityAt(t.Now())
	if err := t.store.CreateTaxType(ctx, tt); err != nil {
		return err
	}
	if tt.IsDefault {
		return t.clearDefaults(ctx, tt.BusinessID, tt.ID)
	}
	return nil
}

// ListTaxTypes returns a business's catalog.
func (t *Tally) ListTaxTypes(ctx context.Context, businessID id.BusinessID) ([]*tax.TaxType, error) {
	return t.store.ListTaxTypes(ctx, businessID)
}

// UpdateTaxType changes a tax type. Invoices already sent keep the rate they
// were computed with; drafts pick up the change on their next save or send.
func (t *Tally) UpdateTaxType(ctx context.Context, tt *tax.TaxType) error {
	if err := validateTaxType(tt); err != nil {
		return err
	}
	cur, err := t.loadTaxType(ctx, tt.BusinessID, tt.ID)
	if err != nil {
		return err
	}
	tt.CreatedAt = cur.CreatedAt
	tt.TouchAt(t.Now())
	if err := t.store.UpdateTaxType(ctx, tt); err != nil {
		return err
	}
	if tt.IsDefault {
		return t.clearDefaults(ctx, tt.BusinessID, tt.ID)
	}
	return nil
}

// SetDefaultTaxType makes taxTypeID the business default.
func (t *Tally) SetDefaultTaxType(ctx context.Context, businessID id.BusinessID, taxTypeID id.TaxTypeID) error {
	tt, err := t.loadTaxType(ctx, businessID, taxTypeID)
	if err != nil {
		return err
	}
	if !tt.IsDefault {
		tt.IsDefault = true
		tt.TouchAt(t.Now())
		if err := t.store.UpdateTaxType(ctx, tt); err != nil {
			return err
		}
	}
	return t.clearDefaults(ctx, businessID, taxTypeID)
}

// DeleteTaxType removes a tax type. Line items that reference it stop
// attracting tax.
func (t *Tally) DeleteTaxType(ctx context.Context, businessID id.BusinessID, taxTypeID id.TaxTypeID) error {
	if _, err := t.loadTaxType(ctx, businessID, taxTypeID); err != nil {
		return err
	}
	return t.store.DeleteTaxType(ctx, taxTypeID)
}

func (t *Tally) clearDefaults(ctx context.Context, businessID id.BusinessID, keep id.TaxTypeID) error {
	all, err := t.store.ListTaxTypes(ctx, businessID)
	if err != nil {
		return err
	}
	for _, other := range all {
		if !other.IsDefault || other.ID.String() == keep.String() {
			continue
		}
		other.IsDefault = false
		other.TouchAt(t.Now())
		if err := t.store.UpdateTaxType(ctx, other); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tally) catalog(ctx context.Context, businessID id.BusinessID) (*tax.Catalog, error) {
	all, err := t.store.ListTaxTypes(ctx, businessID)
	if err != nil {
		return nil, err
	}
	return tax.NewCatalog(all), nil
}

func (t *Tally) loadTaxType(ctx context.Context, businessID id.BusinessID, taxTypeID id.TaxTypeID) (*tax.TaxType, error) {
	tt, err := t.store.GetTaxType(ctx, taxTypeID)
	if err != nil {
		if IsNotFound(err) {
			return nil, notFound("tax type", taxTypeID.String())
		}
		return nil, err
	}
	if tt.BusinessID.String() != businessID.String() {
		return nil, notFound("tax type", taxTypeID.String())
	}
	return tt, nil
}

func validateTaxType(tt *tax.TaxType) error {
	errs := &MultiError{}
	if strings.TrimSpace(tt.Name) == "" {
		errs.Add(Invalid("name", "is required"))
	}
	if tt.Rate.IsNegative() {
		errs.Add(Invalid("rate", "must not be negative"))
	}
	return errs.ErrOrNil()
}
