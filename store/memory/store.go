// Package memory is an in-process Store for tests and single-node use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/usage"
)

var _ store.Store = (*Store)(nil)

// Store keeps every aggregate in maps guarded by one lock. Values are copied
// on the way in and out, so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	businesses map[string]*business.Business
	clients    map[string]*client.Client
	taxTypes   map[string]*tax.TaxType
	invoices   map[string]*invoice.Invoice
	tokens     map[string]string // share token -> invoice id
	usage      map[string]*usage.Counter

	closed bool
}

func New() *Store {
	return &Store{
		businesses: make(map[string]*business.Business),
		clients:    make(map[string]*client.Client),
		taxTypes:   make(map[string]*tax.TaxType),
		invoices:   make(map[string]*invoice.Invoice),
		tokens:     make(map[string]string),
		usage:      make(map[string]*usage.Counter),
	}
}

// Business Store implementation
func (s *Store) CreateBusiness(_ context.Context, b *business.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.businesses[b.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *b
	s.businesses[b.ID.String()] = &cp
	return nil
}

func (s *Store) GetBusiness(_ context.Context, businessID id.BusinessID) (*business.Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.businesses[businessID.String()]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, tally.ErrBusinessNotFound
}

func (s *Store) UpdateBusiness(_ context.Context, b *business.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.businesses[b.ID.String()]
	if !exists {
		return tally.ErrBusinessNotFound
	}
	cp := *b
	cp.InvoiceSeq = cur.InvoiceSeq
	s.businesses[b.ID.String()] = &cp
	return nil
}

func (s *Store) NextInvoiceSeq(_ context.Context, businessID id.BusinessID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.businesses[businessID.String()]
	if !ok {
		return 0, tally.ErrBusinessNotFound
	}
	b.InvoiceSeq++
	return b.InvoiceSeq, nil
}

// Client Store implementation
func (s *Store) CreateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[c.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *c
	s.clients[c.ID.String()] = &cp
	return nil
}

func (s *Store) GetClient(_ context.Context, clientID id.ClientID) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.clients[clientID.String()]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, tally.ErrClientNotFound
}

func (s *Store) ListClients(_ context.Context, businessID id.BusinessID, opts client.ListOpts) ([]*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*client.Client, 0)
	for _, c := range s.clients {
		if c.BusinessID.String() == businessID.String() {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[c.ID.String()]; !exists {
		return tally.ErrClientNotFound
	}
	cp := *c
	s.clients[c.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteClient(_ context.Context, clientID id.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[clientID.String()]; !exists {
		return tally.ErrClientNotFound
	}
	delete(s.clients, clientID.String())
	return nil
}

// Tax Store implementation
func (s *Store) CreateTaxType(_ context.Context, t *tax.TaxType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.taxTypes[t.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *t
	s.taxTypes[t.ID.String()] = &cp
	return nil
}

func (s *Store) GetTaxType(_ context.Context, taxTypeID id.TaxTypeID) (*tax.TaxType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.taxTypes[taxTypeID.String()]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, tally.ErrTaxTypeNotFound
}

func (s *Store) ListTaxTypes(_ context.Context, businessID id.BusinessID) ([]*tax.TaxType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*tax.TaxType, 0)
	for _, t := range s.taxTypes {
		if t.BusinessID.String() == businessID.String() {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) UpdateTaxType(_ context.Context, t *tax.TaxType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.taxTypes[t.ID.String()]; !exists {
		return tally.ErrTaxTypeNotFound
	}
	cp := *t
	s.taxTypes[t.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteTaxType(_ context.Context, taxTypeID id.TaxTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.taxTypes[taxTypeID.String()]; !exists {
		return tally.ErrTaxTypeNotFound
	}
	delete(s.taxTypes, taxTypeID.String())
	return nil
}

// Invoice Store implementation
func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inv.ID.String()
	if _, exists := s.invoices[key]; exists {
		return tally.ErrAlreadyExists
	}
	if inv.ShareToken != "" {
		if _, taken := s.tokens[inv.ShareToken]; taken {
			return tally.ErrAlreadyExists
		}
		s.tokens[inv.ShareToken] = key
	}
	s.invoices[key] = inv.Clone()
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return inv.Clone(), nil
	}
	return nil, tally.ErrInvoiceNotFound
}

func (s *Store) GetInvoiceByShareToken(_ context.Context, token string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.tokens[token]; ok {
		if inv, ok := s.invoices[key]; ok {
			return inv.Clone(), nil
		}
	}
	return nil, tally.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, businessID id.BusinessID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.BusinessID.String() == businessID.String() && opts.Matches(inv) {
			result = append(result, inv.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() > result[j].ID.String()
	})
	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.invoices[inv.ID.String()]
	if !exists {
		return tally.ErrInvoiceNotFound
	}
	inv.Version = cur.Version + 1
	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) TransitionInvoice(_ context.Context, inv *invoice.Invoice, from invoice.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.invoices[inv.ID.String()]
	if !exists {
		return tally.ErrInvoiceNotFound
	}
	if invoice.Normalize(cur.Status) != invoice.Normalize(from) {
		return fmt.Errorf("%w: invoice %s is %s, expected %s", tally.ErrStatusConflict, inv.ID, cur.Status, from)
	}
	if cur.Version != inv.Version {
		return fmt.Errorf("%w: invoice %s is at version %d, expected %d", tally.ErrStatusConflict, inv.ID, cur.Version, inv.Version)
	}
	inv.Version++
	s.invoices[inv.ID.String()] = inv.Clone()
	return nil
}

func (s *Store) DeleteInvoice(_ context.Context, invID id.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invoices[invID.String()]
	if !exists {
		return tally.ErrInvoiceNotFound
	}
	delete(s.tokens, inv.ShareToken)
	delete(s.invoices, invID.String())
	return nil
}

func (s *Store) ListDueTemplates(_ context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.IsRecurring && inv.NextRecurringDate != nil && !inv.NextRecurringDate.After(asOf) {
			result = append(result, inv.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextRecurringDate.Equal(*result[j].NextRecurringDate) {
			return result[i].NextRecurringDate.Before(*result[j].NextRecurringDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return page(result, 0, limit), nil
}

// Usage Store implementation
func (s *Store) IncrementUsage(_ context.Context, businessID id.BusinessID, period string, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey(businessID, period)
	c, ok := s.usage[key]
	if !ok {
		c = &usage.Counter{BusinessID: businessID, Period: period}
		s.usage[key] = c
	}
	if limit != usage.Unlimited && c.Count >= limit {
		return c.Count, false, nil
	}
	c.Count++
	c.UpdatedAt = time.Now().UTC()
	return c.Count, true, nil
}

func (s *Store) ReleaseUsage(_ context.Context, businessID id.BusinessID, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.usage[usageKey(businessID, period)]; ok && c.Count > 0 {
		c.Count--
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *Store) GetUsage(_ context.Context, businessID id.BusinessID, period string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.usage[usageKey(businessID, period)]; ok {
		return c.Count, nil
	}
	return 0, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tally.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func usageKey(businessID id.BusinessID, period string) string {
	return businessID.String() + ":" + period
}

func page[T any](items []T, offset, limit int) []T {
	start := min(offset, len(items))
	end := len(items)
	if limit > 0 {
		end = min(start+limit, len(items))
	}
	return items[start:end]
}
