package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/business"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

func seedBusiness(t *testing.T, s *memory.Store) *business.Business {
	t.Helper()
	b := &business.Business{ID: id.NewBusinessID(), Name: "Acme", Tier: business.TierFree}
	require.NoError(t, s.CreateBusiness(context.Background(), b))
	return b
}

func TestNextInvoiceSeqIsMonotonic(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := seedBusiness(t, s)

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextInvoiceSeq(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	b.InvoiceSeq = 0
	b.Name = "Acme Inc"
	require.NoError(t, s.UpdateBusiness(ctx, b))

	got, err := s.NextInvoiceSeq(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)

	_, err = s.NextInvoiceSeq(ctx, id.NewBusinessID())
	assert.ErrorIs(t, err, tally.ErrBusinessNotFound)
}

func TestTransitionInvoiceIsConditional(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := seedBusiness(t, s)

	inv := &invoice.Invoice{
		ID:         id.NewInvoiceID(),
		BusinessID: b.ID,
		Status:     invoice.StatusDraft,
		Currency:   "usd",
		Total:      types.USD(1000),
		ShareToken: "tok-1",
	}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	sent := inv.Clone()
	sent.Status = invoice.StatusSent
	require.NoError(t, s.TransitionInvoice(ctx, sent, invoice.StatusDraft))

	stale := inv.Clone()
	stale.Status = invoice.StatusSent
	err := s.TransitionInvoice(ctx, stale, invoice.StatusDraft)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tally.ErrStatusConflict))

	got, err := s.GetInvoiceByShareToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, got.Status)
}

func TestTransitionInvoiceChecksVersion(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := seedBusiness(t, s)

	inv := &invoice.Invoice{
		ID:         id.NewInvoiceID(),
		BusinessID: b.ID,
		Status:     invoice.StatusPartiallyPaid,
		Currency:   "usd",
		Total:      types.USD(1000),
	}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	first, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	second, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)

	first.AmountPaid = types.USD(300)
	require.NoError(t, s.TransitionInvoice(ctx, first, invoice.StatusPartiallyPaid))
	assert.Equal(t, int64(1), first.Version)

	second.AmountPaid = types.USD(200)
	err = s.TransitionInvoice(ctx, second, invoice.StatusPartiallyPaid)
	assert.ErrorIs(t, err, tally.ErrStatusConflict)

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), got.AmountPaid.Amount)
	assert.Equal(t, int64(1), got.Version)

	require.NoError(t, s.UpdateInvoice(ctx, got))
	assert.Equal(t, int64(2), got.Version)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := seedBusiness(t, s)

	inv := &invoice.Invoice{
		ID:         id.NewInvoiceID(),
		BusinessID: b.ID,
		Status:     invoice.StatusDraft,
		Currency:   "usd",
		LineItems:  []invoice.LineItem{{Description: "a"}},
	}
	require.NoError(t, s.CreateInvoice(ctx, inv))

	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	got.LineItems[0].Description = "mutated"

	again, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.LineItems[0].Description)
}

func TestDeleteInvoiceFreesShareToken(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := seedBusiness(t, s)

	inv := &invoice.Invoice{ID: id.NewInvoiceID(), BusinessID: b.ID, ShareToken: "tok-2", Status: invoice.StatusSent}
	require.NoError(t, s.CreateInvoice(ctx, inv))
	require.NoError(t, s.DeleteInvoice(ctx, inv.ID))

	_, err := s.GetInvoiceByShareToken(ctx, "tok-2")
	assert.True(t, tally.IsNotFound(err))
}

func TestListDueTemplates(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	b := seedBusiness(t, s)
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	add := func(next time.Time, recurring bool) *invoice.Invoice {
		inv := &invoice.Invoice{
			ID:                id.NewInvoiceID(),
			BusinessID:        b.ID,
			Status:            invoice.StatusDraft,
			IsRecurring:       recurring,
			NextRecurringDate: &next,
		}
		require.NoError(t, s.CreateInvoice(ctx, inv))
		return inv
	}
	later := add(now.AddDate(0, 0, -1), true)
	earlier := add(now.AddDate(0, 0, -5), true)
	add(now, true)
	add(now.AddDate(0, 0, 1), true)
	add(now.AddDate(0, 0, -3), false)

	due, err := s.ListDueTemplates(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, earlier.ID, due[0].ID)
	assert.Equal(t, later.ID, due[1].ID)

	limited, err := s.ListDueTemplates(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPingAfterClose(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Ping(context.Background()), tally.ErrStoreClosed)
}
