package audithook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

type captured struct {
	events []*AuditEvent
}

func (c *captured) recorder() Recorder {
	return RecorderFunc(func(_ context.Context, evt *AuditEvent) error {
		c.events = append(c.events, evt)
		return nil
	})
}

func sampleInvoice() *invoice.Invoice {
	return &invoice.Invoice{
		ID:         id.NewInvoiceID(),
		BusinessID: id.NewBusinessID(),
		Number:     "INV-0001",
		Currency:   "usd",
		Total:      types.USD(11000),
		AmountPaid: types.USD(5000),
	}
}

func TestInvoiceSentAndResent(t *testing.T) {
	c := &captured{}
	ext := New(c.recorder())
	inv := sampleInvoice()

	require.NoError(t, ext.OnInvoiceSent(context.Background(), inv, false))
	require.NoError(t, ext.OnInvoiceSent(context.Background(), inv, true))

	require.Len(t, c.events, 2)
	assert.Equal(t, ActionInvoiceSent, c.events[0].Action)
	assert.Equal(t, ActionInvoiceResent, c.events[1].Action)
	assert.Equal(t, inv.ID.String(), c.events[0].ResourceID)
	assert.Equal(t, "INV-0001", c.events[0].Metadata["invoice_number"])
	assert.Equal(t, int64(11000), c.events[0].Metadata["total"])
}

func TestPaymentRecordedMetadata(t *testing.T) {
	c := &captured{}
	ext := New(c.recorder())
	inv := sampleInvoice()
	p := &invoice.Payment{
		ID:        id.NewPaymentID(),
		InvoiceID: inv.ID,
		Amount:    types.USD(5000),
		Method:    invoice.MethodGateway,
		Reference: "pay_rzp_1",
	}

	require.NoError(t, ext.OnPaymentRecorded(context.Background(), inv, p))

	require.Len(t, c.events, 1)
	evt := c.events[0]
	assert.Equal(t, ActionPaymentRecorded, evt.Action)
	assert.Equal(t, ResourcePayment, evt.Resource)
	assert.Equal(t, "gateway", evt.Metadata["method"])
	assert.Equal(t, int64(6000), evt.Metadata["balance_due"])
}

func TestFailuresCarryReason(t *testing.T) {
	c := &captured{}
	ext := New(c.recorder())

	require.NoError(t, ext.OnRecurringFailed(context.Background(), "inv_tmpl", errors.New("no client")))
	require.NoError(t, ext.OnNotificationFailed(context.Background(), "thank_you", "inv_1", 3, errors.New("smtp down")))

	require.Len(t, c.events, 2)
	assert.Equal(t, OutcomeFailure, c.events[0].Outcome)
	assert.Equal(t, "no client", c.events[0].Reason)
	assert.Equal(t, 3, c.events[1].Metadata["attempts"])
	assert.Equal(t, "smtp down", c.events[1].Metadata["error"])
}

func TestEnabledActions(t *testing.T) {
	c := &captured{}
	ext := New(c.recorder(), WithEnabledActions(ActionInvoicePaid))
	inv := sampleInvoice()

	require.NoError(t, ext.OnInvoiceCreated(context.Background(), inv))
	require.NoError(t, ext.OnInvoicePaid(context.Background(), inv))

	require.Len(t, c.events, 1)
	assert.Equal(t, ActionInvoicePaid, c.events[0].Action)
}

func TestDisabledActions(t *testing.T) {
	c := &captured{}
	ext := New(c.recorder(), WithDisabledActions(ActionInvoiceUpdated))
	inv := sampleInvoice()

	require.NoError(t, ext.OnInvoiceUpdated(context.Background(), inv))
	require.NoError(t, ext.OnQuotaExceeded(context.Background(), inv.BusinessID.String(), "2025-01", 3, 3))

	require.Len(t, c.events, 1)
	assert.Equal(t, ActionQuotaExceeded, c.events[0].Action)
	assert.Equal(t, int64(3), c.events[0].Metadata["limit"])
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend down")
	}))
	assert.NoError(t, ext.OnInvoiceDeleted(context.Background(), "biz", "inv"))
}
