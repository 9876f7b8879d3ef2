package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/invoice"
	"github.com/xraph/tally/types"
)

func TestMetricsExtensionPrometheus(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg))

	inv := &invoice.Invoice{Total: types.USD(11000)}
	tmpl := &invoice.Invoice{IsRecurring: true}

	require.NoError(t, m.OnInvoiceCreated(ctx, inv))
	require.NoError(t, m.OnInvoiceCreated(ctx, tmpl))
	require.NoError(t, m.OnInvoiceSent(ctx, inv, false))
	require.NoError(t, m.OnInvoiceSent(ctx, inv, true))
	require.NoError(t, m.OnPaymentRecorded(ctx, inv, &invoice.Payment{Amount: types.USD(5000), Method: invoice.MethodGateway}))
	require.NoError(t, m.OnPaymentRecorded(ctx, inv, &invoice.Payment{Amount: types.USD(6000), Method: invoice.MethodCash}))
	require.NoError(t, m.OnPaymentOverage(ctx, inv, &invoice.Payment{Amount: types.USD(7000), Method: invoice.MethodGateway}, 1000))
	require.NoError(t, m.OnInvoicePaid(ctx, inv))
	require.NoError(t, m.OnQuotaExceeded(ctx, "biz", "2025-01", 3, 3))
	require.NoError(t, m.OnRecurringFailed(ctx, "inv_x", errors.New("boom")))
	require.NoError(t, m.OnRecurringRun(ctx, 2, 1, 1, 15*time.Millisecond))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoiceCreated.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TemplateCreated.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoiceSent.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoiceResent.(prometheus.Counter)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PaymentRecorded.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentGateway.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentOverage.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoicePaid.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaExceeded.(prometheus.Counter)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecurringFailed.(prometheus.Counter)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["tally_invoice_sent_total"])
	assert.True(t, names["tally_recurring_latency_ms"])
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewPrometheusFactory(reg)

	a := f.Counter("tally.invoice.sent")
	b := f.Counter("tally.invoice.sent")
	a.Inc()
	b.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.(prometheus.Counter)))
	assert.Equal(t, 1, testutil.CollectAndCount(a.(prometheus.Counter)))
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "tally_usage_quota_exceeded", metricName("tally.usage.quota_exceeded"))
	assert.Equal(t, "tally_a_b", metricName("tally.a-b"))
}
