package tally

import (
	"context"
	"strings"

	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Businesses
// ──────────────────────────────────────────────────

// CreateBusiness registers a business. Tier defaults to free.
func (t *Tally) CreateBusiness(ctx context.Context, b *business.Business) error {
	if strings.TrimSpace(b.Name) == "" {
		return Invalid("name", "is required")
	}
	if b.Tier == "" {
		b.Tier = business.TierFree
	}
	if !b.Tier.IsValid() {
		return Invalid("tier", "unknown tier %q", b.Tier)
	}
	if b.ID.IsNil() {
		b.ID = id.NewBusinessID()
	}
	b.Currency = strings.ToLower(b.Currency)
	if b.Currency == "" {
		b.Currency = "usd"
	}
	if b.InvoicePrefix == "" {
		b.InvoicePrefix = business.DefaultInvoicePrefix
	}
	b.Entity = types.NewEntityAt(t.Now())

	return t.store.CreateBusiness(ctx, b)
}

// GetBusiness retrieves a business by ID.
func (t *Tally) GetBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	return t.loadBusiness(ctx, businessID)
}

// UpdateBusiness saves profile changes. The invoice sequence is owned by the
// store and is not overwritten.
func (t *Tally) UpdateBusiness(ctx context.Context, b *business.Business) error {
	cur, err := t.loadBusiness(ctx, b.ID)
	if err != nil {
		return err
	}
	if !b.Tier.IsValid() {
		return Invalid("tier", "unknown tier %q", b.Tier)
	}
	b.InvoiceSeq = cur.InvoiceSeq
	b.CreatedAt = cur.CreatedAt
	b.TouchAt(t.Now())
	return t.store.UpdateBusiness(ctx, b)
}

// UpdateBusinessTier moves a business between free and pro. The new quota
// applies to the current month immediately.
func (t *Tally) UpdateBusinessTier(ctx context.Context, businessID id.BusinessID, tier business.Tier) (*business.Business, error) {
	if !tier.IsValid() {
		return nil, Invalid("tier", "unknown tier %q", tier)
	}
	b, err := t.loadBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	b.Tier = tier
	b.TouchAt(t.Now())
	if err := t.store.UpdateBusiness(ctx, b); err != nil {
		return nil, err
	}
	t.logger.Info("business tier changed", "business_id", businessID.String(), "tier", string(tier))
	return b, nil
}

// ──────────────────────────────────────────────────
// Clients
// ──────────────────────────────────────────────────

// CreateClient adds a client to a business.
func (t *Tally) CreateClient(ctx context.Context, c *client.Client) error {
	if strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.Company) == "" {
		return Invalid("name", "name or company is required")
	}
	if _, err := t.loadBusiness(ctx, c.BusinessID); err != nil {
		return err
	}
	if c.ID.IsNil() {
		c.ID = id.NewClientID()
	}
	c.Email = strings.TrimSpace(c.Email)
	c.Entity = types.NewEntityAt(t.Now())
	return t.store.CreateClient(ctx, c)
}

// GetClient retrieves a client owned by businessID.
func (t *Tally) GetClient(ctx context.Context, businessID id.BusinessID, clientID id.ClientID) (*client.Client, error) {
	return t.loadClient(ctx, businessID, clientID)
}

// ListClients lists a business's clients.
func (t *Tally) ListClients(ctx context.Context, businessID id.BusinessID, opts client.ListOpts) ([]*client.Client, error) {
	return t.store.ListClients(ctx, businessID, opts)
}

// UpdateClient saves client changes.
func (t *Tally) UpdateClient(ctx context.Context, c *client.Client) error {
	cur, err := t.loadClient(ctx, c.BusinessID, c.ID)
	if err != nil {
		return err
	}
	c.CreatedAt = cur.CreatedAt
	c.TouchAt(t.Now())
	return t.store.UpdateClient(ctx, c)
}

// DeleteClient removes a client. Invoices keep the dangling id and can no
// longer be sent.
func (t *Tally) DeleteClient(ctx context.Context, businessID id.BusinessID, clientID id.ClientID) error {
	if _, err := t.loadClient(ctx, businessID, clientID); err != nil {
		return err
	}
	return t.store.DeleteClient(ctx, clientID)
}

// ──────────────────────────────────────────────────
// Lookups
// ──────────────────────────────────────────────────

func (t *Tally) loadBusiness(ctx context.Context, businessID id.BusinessID) (*business.Business, error) {
	if businessID.IsNil() {
		return nil, notFound("business", "")
	}
	b, err := t.store.GetBusiness(ctx, businessID)
	if err != nil {
		if IsNotFound(err) {
			return nil, notFound("business", businessID.String())
		}
		return nil, err
	}
	return b, nil
}

func (t *Tally) loadClient(ctx context.Context, businessID id.BusinessID, clientID id.ClientID) (*client.Client, error) {
	if clientID.IsNil() {
		return nil, notFound("client", "")
	}
	c, err := t.store.GetClient(ctx, clientID)
	if err != nil {
		if IsNotFound(err) {
			return nil, notFound("client", clientID.String())
		}
		return nil, err
	}
	if c.BusinessID.String() != businessID.String() {
		return nil, notFound("client", clientID.String())
	}
	return c, nil
}
