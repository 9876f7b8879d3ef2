package tally_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/business"
	"github.com/xraph/tally/client"
	"github.com/xraph/tally/gateway"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/recurrence"
	"github.com/xraph/tally/scheduler"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/tax"
	"github.com/xraph/tally/types"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *clock
	store  *memory.Store
	engine *tally.Tally
	biz    *business.Business
	client *client.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		clock: &clock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		store: memory.New(),
	}
	h.engine = tally.New(h.store, tally.WithClock(h.clock.Now))
	require.NoError(t, h.engine.Start(h.ctx))
	t.Cleanup(func() { _ = h.engine.Stop() })

	h.biz = &business.Business{Name: "Acme", Email: "billing@acme.test"}
	require.NoError(t, h.engine.CreateBusiness(h.ctx, h.biz))

	h.client = &client.Client{BusinessID: h.biz.ID, Name: "Wile E.", Email: "wile@example.test"}
	require.NoError(t, h.engine.CreateClient(h.ctx, h.client))
	return h
}

func (h *harness) draft(clientID id.ClientID) *invoice.Invoice {
	h.t.Helper()
	inv, err := h.engine.CreateInvoice(h.ctx, tally.CreateInvoiceCommand{
		BusinessID: h.biz.ID,
		ClientID:   clientID,
		Items: []tally.LineItemInput{
			{Description: "Rockets", Quantity: decimal.NewFromInt(2), Rate: 5000},
		},
		Shipping: 1000,
	})
	require.NoError(h.t, err)
	return inv
}

func (h *harness) sent() *invoice.Invoice {
	h.t.Helper()
	res, err := h.engine.SendInvoice(h.ctx, h.biz.ID, h.draft(h.client.ID).ID)
	require.NoError(h.t, err)
	return res.Invoice
}

func TestCreateInvoiceTotals(t *testing.T) {
	h := newHarness(t)

	gst := &tax.TaxType{BusinessID: h.biz.ID, Name: "GST", Rate: decimal.NewFromInt(10)}
	require.NoError(t, h.engine.CreateTaxType(h.ctx, gst))

	inv, err := h.engine.CreateInvoice(h.ctx, tally.CreateInvoiceCommand{
		BusinessID: h.biz.ID,
		ClientID:   h.client.ID,
		Items: []tally.LineItemInput{
			{Description: "Design", Quantity: decimal.NewFromInt(2), Rate: 5000, TaxTypeID: gst.ID},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, invoice.StatusDraft, inv.Status)
	assert.Equal(t, int64(10000), inv.Subtotal.Amount)
	assert.Equal(t, int64(1000), inv.TaxAmount.Amount)
	assert.Equal(t, int64(11000), inv.Total.Amount)
	assert.Equal(t, "INV-0001", inv.Number)
	assert.NotEmpty(t, inv.ShareToken)
	assert.Equal(t, time.Date(2025, 4, 9, 0, 0, 0, 0, time.UTC), inv.DueDate)

	next := h.draft(h.client.ID)
	assert.Equal(t, "INV-0002", next.Number)
}

func TestSendRequiresClient(t *testing.T) {
	h := newHarness(t)
	inv := h.draft(id.ClientID{})

	_, err := h.engine.SendInvoice(h.ctx, h.biz.ID, inv.ID)
	require.Error(t, err)
	assert.True(t, tally.IsValidation(err))

	got, err := h.engine.GetInvoice(h.ctx, h.biz.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, got.Status)

	snap, err := h.engine.GetMonthlyUsage(h.ctx, h.biz.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Count)
}

func TestFreeTierQuota(t *testing.T) {
	h := newHarness(t)
	for range 3 {
		h.sent()
	}

	fourth := h.draft(h.client.ID)
	_, err := h.engine.SendInvoice(h.ctx, h.biz.ID, fourth.ID)
	require.Error(t, err)
	assert.True(t, tally.IsQuotaExceeded(err))

	var qe *tally.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, int64(3), qe.Used)
	assert.Equal(t, int64(3), qe.Limit)
	assert.Equal(t, "2025-03", qe.Period)

	got, err := h.engine.GetInvoice(h.ctx, h.biz.ID, fourth.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, got.Status)

	_, err = h.engine.UpdateBusinessTier(h.ctx, h.biz.ID, business.TierPro)
	require.NoError(t, err)

	res, err := h.engine.SendInvoice(h.ctx, h.biz.ID, fourth.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, res.Invoice.Status)
}

func TestQuotaResetsNextMonth(t *testing.T) {
	h := newHarness(t)
	for range 3 {
		h.sent()
	}

	h.clock.now = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	snap, err := h.engine.GetMonthlyUsage(h.ctx, h.biz.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-04", snap.Period)
	assert.Equal(t, int64(0), snap.Count)
	assert.True(t, snap.CanSend)

	h.sent()
}

func TestResendDoesNotConsumeQuota(t *testing.T) {
	h := newHarness(t)
	inv := h.sent()

	res, err := h.engine.SendInvoice(h.ctx, h.biz.ID, inv.ID)
	require.NoError(t, err)
	assert.True(t, res.Resent)
	assert.NotNil(t, res.Notification)

	snap, err := h.engine.GetMonthlyUsage(h.ctx, h.biz.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Count)
}

func TestResendRequiresEmail(t *testing.T) {
	h := newHarness(t)
	inv := h.sent()

	h.client.Email = ""
	require.NoError(t, h.engine.UpdateClient(h.ctx, h.client))

	_, err := h.engine.SendInvoice(h.ctx, h.biz.ID, inv.ID)
	assert.True(t, tally.IsValidation(err))
}

func TestPartialThenFullPayment(t *testing.T) {
	h := newHarness(t)
	inv := h.sent()

	res, err := h.engine.RecordPayment(h.ctx, tally.RecordPaymentCommand{
		BusinessID: h.biz.ID,
		InvoiceID:  inv.ID,
		Amount:     5000,
		Method:     invoice.MethodBankTransfer,
	})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPartiallyPaid, res.Invoice.Status)
	assert.Equal(t, int64(6000), res.Invoice.BalanceDue().Amount)
	assert.False(t, res.BecamePaid)

	_, err = h.engine.RecordPayment(h.ctx, tally.RecordPaymentCommand{
		BusinessID: h.biz.ID,
		InvoiceID:  inv.ID,
		Amount:     7000,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, tally.ErrPaymentExceedsBalance)

	res, err = h.engine.RecordPayment(h.ctx, tally.RecordPaymentCommand{
		BusinessID: h.biz.ID,
		InvoiceID:  inv.ID,
		Amount:     6000,
	})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, res.Invoice.Status)
	assert.True(t, res.BecamePaid)
	assert.NotNil(t, res.Invoice.PaidAt)
	assert.NotNil(t, res.Invoice.ThankYouSentAt)
	assert.Len(t, res.Invoice.Payments, 2)

	_, err = h.engine.RecordPayment(h.ctx, tally.RecordPaymentCommand{
		BusinessID: h.biz.ID,
		InvoiceID:  inv.ID,
		Amount:     1,
	})
	assert.ErrorIs(t, err, tally.ErrNotPayable)
}

func TestDraftIsNotPayable(t *testing.T) {
	h := newHarness(t)
	inv := h.draft(h.client.ID)

	_, err := h.engine.RecordPayment(h.ctx, tally.RecordPaymentCommand{
		BusinessID: h.biz.ID,
		InvoiceID:  inv.ID,
		Amount:     100,
	})
	assert.True(t, tally.IsValidation(err))
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	h := newHarness(t)
	inv := h.sent()

	first, err := h.engine.MarkPaid(h.ctx, h.biz.ID, inv.ID, invoice.MethodCash)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, first.Invoice.Status)
	assert.Equal(t, int64(11000), first.Payment.Amount.Amount)

	second, err := h.engine.MarkPaid(h.ctx, h.biz.ID, inv.ID, invoice.MethodCash)
	require.NoError(t, err)
	assert.Nil(t, second.Payment)
	assert.Len(t, second.Invoice.Payments, 1)
}

func TestConfirmGatewayPaymentDeduplicates(t *testing.T) {
	h := newHarness(t)
	inv := h.sent()

	conf := &gateway.Confirmation{
		Provider:   "razorpay",
		Reference:  "pay_123",
		ShareToken: inv.ShareToken,
		Amount:     types.USD(11000),
	}
	res, err := h.engine.ConfirmGatewayPayment(h.ctx, conf)
	require.NoError(t, err)
	assert.True(t, res.BecamePaid)
	assert.Equal(t, invoice.MethodGateway, res.Payment.Method)

	res, err = h.engine.ConfirmGatewayPayment(h.ctx, conf)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, res.Invoice.Payments, 1)
}

func TestSentInvoiceIsImmutable(t *testing.T) {
	h := newHarness(t)
	inv := h.sent()

	notes := "late edit"
	_, err := h.engine.UpdateInvoice(h.ctx, tally.UpdateInvoiceCommand{
		BusinessID: h.biz.ID,
		InvoiceID:  inv.ID,
		Notes:      &notes,
	})
	assert.ErrorIs(t, err, tally.ErrInvoiceNotEditable)
}

func TestOverdueIsDerived(t *testing.T) {
	h := newHarness(t)
	inv := h.sent()

	view, err := h.engine.GetInvoiceView(h.ctx, h.biz.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, view.DisplayStatus)
	assert.False(t, view.IsOverdue)

	h.clock.now = inv.DueDate.AddDate(0, 0, 1)
	view, err = h.engine.GetInvoiceView(h.ctx, h.biz.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusOverdue, view.DisplayStatus)
	assert.True(t, view.IsOverdue)
	assert.Equal(t, invoice.StatusSent, view.Status)

	overdue, err := h.engine.ListInvoices(h.ctx, h.biz.ID, invoice.ListOpts{
		Statuses: []invoice.Status{invoice.StatusOverdue},
	})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, inv.ID, overdue[0].ID)
}

func TestPublicInvoiceHidesDrafts(t *testing.T) {
	h := newHarness(t)
	draft := h.draft(h.client.ID)

	_, err := h.engine.GetPublicInvoice(h.ctx, draft.ShareToken)
	assert.True(t, tally.IsNotFound(err))

	inv := h.sent()
	pub, err := h.engine.GetPublicInvoice(h.ctx, inv.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, pub.Number)
}

func TestRecurringGeneration(t *testing.T) {
	h := newHarness(t)

	tmpl, err := h.engine.CreateInvoice(h.ctx, tally.CreateInvoiceCommand{
		BusinessID: h.biz.ID,
		ClientID:   h.client.ID,
		Items: []tally.LineItemInput{
			{Description: "Retainer", Quantity: decimal.NewFromInt(1), Rate: 20000},
		},
		Recurrence: &tally.RecurrenceInput{
			Frequency: recurrence.Monthly,
			StartDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	assert.True(t, tmpl.IsTemplate())

	_, err = h.engine.SendInvoice(h.ctx, h.biz.ID, tmpl.ID)
	assert.ErrorIs(t, err, tally.ErrTemplateNotSendable)

	due, err := h.engine.DueTemplates(h.ctx, h.clock.now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	occ, err := h.engine.GenerateFromTemplate(h.ctx, due[0], h.clock.now)
	require.NoError(t, err)
	assert.True(t, occ.Sent)
	assert.Equal(t, invoice.StatusSent, occ.Invoice.Status)
	assert.Equal(t, tmpl.ID, occ.Invoice.TemplateID)
	assert.False(t, occ.Invoice.IsRecurring)
	assert.Equal(t, int64(20000), occ.Invoice.Total.Amount)
	assert.Equal(t, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC), occ.NextDate)

	due, err = h.engine.DueTemplates(h.ctx, h.clock.now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestSchedulerIsolatesBrokenTemplate(t *testing.T) {
	h := newHarness(t)
	past := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	good, err := h.engine.CreateInvoice(h.ctx, tally.CreateInvoiceCommand{
		BusinessID: h.biz.ID,
		ClientID:   h.client.ID,
		Items: []tally.LineItemInput{
			{Description: "Hosting", Quantity: decimal.NewFromInt(1), Rate: 1500},
		},
		Recurrence: &tally.RecurrenceInput{Frequency: recurrence.Weekly, StartDate: past},
	})
	require.NoError(t, err)

	broken := &invoice.Invoice{
		ID:                id.NewInvoiceID(),
		BusinessID:        h.biz.ID,
		Status:            invoice.StatusDraft,
		Currency:          "usd",
		IsRecurring:       true,
		Recurrence:        recurrence.Rule{Frequency: "hourly", Every: 1},
		NextRecurringDate: &past,
	}
	require.NoError(t, h.store.CreateInvoice(h.ctx, broken))

	s := scheduler.New(h.engine, scheduler.WithClock(h.clock.Now))
	report, err := s.RunOnce(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Due)
	require.Len(t, report.Generated, 1)
	assert.Equal(t, good.ID.String(), report.Generated[0].TemplateID)
	assert.True(t, report.Generated[0].Sent)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, broken.ID.String(), report.Failed[0].TemplateID)
}

// lockstepReads holds the first two invoice reads until both have happened,
// so two writers start from the same snapshot.
type lockstepReads struct {
	*memory.Store
	reads atomic.Int32
	both  sync.WaitGroup
}

func newLockstepReads(s *memory.Store) *lockstepReads {
	l := &lockstepReads{Store: s}
	l.both.Add(2)
	return l
}

func (l *lockstepReads) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := l.Store.GetInvoice(ctx, invID)
	if l.reads.Add(1) <= 2 {
		l.both.Done()
		l.both.Wait()
	}
	return inv, err
}

func TestConcurrentPaymentsAreNotLost(t *testing.T) {
	h := newHarness(t)
	inv := h.sent()

	_, err := h.engine.RecordPayment(h.ctx, tally.RecordPaymentCommand{
		BusinessID: h.biz.ID,
		InvoiceID:  inv.ID,
		Amount:     1000,
	})
	require.NoError(t, err)

	racing := tally.New(newLockstepReads(h.store), tally.WithClock(h.clock.Now))
	require.NoError(t, racing.Start(h.ctx))
	t.Cleanup(func() { _ = racing.Stop() })

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = racing.RecordPayment(h.ctx, tally.RecordPaymentCommand{
				BusinessID: h.biz.ID,
				InvoiceID:  inv.ID,
				Amount:     2000,
			})
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := h.engine.GetInvoice(h.ctx, h.biz.ID, inv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Payments, 3)
	assert.Equal(t, int64(5000), got.AmountPaid.Amount)
	assert.Equal(t, int64(5000), got.SumPayments().Amount)
	assert.Equal(t, invoice.StatusPartiallyPaid, got.Status)
}

func TestMonthlyTemplateKeepsMonthEnd(t *testing.T) {
	h := newHarness(t)
	h.clock.now = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	tmpl, err := h.engine.CreateInvoice(h.ctx, tally.CreateInvoiceCommand{
		BusinessID: h.biz.ID,
		ClientID:   h.client.ID,
		Items: []tally.LineItemInput{
			{Description: "Retainer", Quantity: decimal.NewFromInt(1), Rate: 20000},
		},
		Recurrence: &tally.RecurrenceInput{
			Frequency: recurrence.Monthly,
			StartDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 31, tmpl.Recurrence.Day)

	want := []time.Time{
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
	}
	for _, w := range want {
		due, err := h.engine.DueTemplates(h.ctx, h.clock.now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)

		occ, err := h.engine.GenerateFromTemplate(h.ctx, due[0], h.clock.now)
		require.NoError(t, err)
		assert.Equal(t, w, occ.NextDate)
		h.clock.now = occ.NextDate
	}

	stored, err := h.engine.GetInvoice(h.ctx, h.biz.ID, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, stored.Recurrence.Day)
}

func TestMarkPaidWithNothingDue(t *testing.T) {
	h := newHarness(t)
	draft, err := h.engine.CreateInvoice(h.ctx, tally.CreateInvoiceCommand{
		BusinessID: h.biz.ID,
		ClientID:   h.client.ID,
		Items: []tally.LineItemInput{
			{Description: "Courtesy review", Quantity: decimal.NewFromInt(1), Rate: 0},
		},
	})
	require.NoError(t, err)
	_, err = h.engine.SendInvoice(h.ctx, h.biz.ID, draft.ID)
	require.NoError(t, err)

	res, err := h.engine.MarkPaid(h.ctx, h.biz.ID, draft.ID, invoice.MethodCash)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, res.Invoice.Status)
	assert.True(t, res.BecamePaid)
	assert.Nil(t, res.Payment)
	assert.NotNil(t, res.Invoice.PaidAt)

	got, err := h.engine.GetInvoice(h.ctx, h.biz.ID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, got.Status)
	assert.Empty(t, got.Payments)
	assert.Equal(t, int64(0), got.AmountPaid.Amount)
}

type overageRecorder struct {
	excess []int64
}

func (r *overageRecorder) Name() string { return "overage-recorder" }

func (r *overageRecorder) OnPaymentOverage(_ context.Context, _ *invoice.Invoice, _ *invoice.Payment, excess int64) error {
	r.excess = append(r.excess, excess)
	return nil
}

var _ plugin.OnPaymentOverage = (*overageRecorder)(nil)

func TestGatewayOverpaymentIsReported(t *testing.T) {
	rec := &overageRecorder{}
	st := memory.New()
	clk := &clock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	engine := tally.New(st, tally.WithClock(clk.Now), tally.WithPlugin(rec))
	ctx := context.Background()
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() { _ = engine.Stop() })

	biz := &business.Business{Name: "Acme", Email: "billing@acme.test"}
	require.NoError(t, engine.CreateBusiness(ctx, biz))
	cl := &client.Client{BusinessID: biz.ID, Name: "Wile E.", Email: "wile@example.test"}
	require.NoError(t, engine.CreateClient(ctx, cl))

	draft, err := engine.CreateInvoice(ctx, tally.CreateInvoiceCommand{
		BusinessID: biz.ID,
		ClientID:   cl.ID,
		Items: []tally.LineItemInput{
			{Description: "Rockets", Quantity: decimal.NewFromInt(1), Rate: 10000},
		},
	})
	require.NoError(t, err)
	sent, err := engine.SendInvoice(ctx, biz.ID, draft.ID)
	require.NoError(t, err)

	res, err := engine.ConfirmGatewayPayment(ctx, &gateway.Confirmation{
		Provider:   "razorpay",
		Reference:  "pay_over",
		ShareToken: sent.Invoice.ShareToken,
		Amount:     types.USD(12500),
	})
	require.NoError(t, err)
	assert.True(t, res.BecamePaid)
	assert.Equal(t, int64(12500), res.Invoice.AmountPaid.Amount)
	assert.Equal(t, []int64{2500}, rec.excess)

	_, err = engine.ConfirmGatewayPayment(ctx, &gateway.Confirmation{
		Provider:   "razorpay",
		Reference:  "pay_exact",
		ShareToken: sent.Invoice.ShareToken,
		Amount:     types.USD(100),
	})
	require.NoError(t, err)
	assert.Len(t, rec.excess, 1)
}
