package observability

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by client_golang collectors.
// Dotted metric names are rewritten to Prometheus form, so
// "tally.invoice.sent" becomes "tally_invoice_sent_total".
type PrometheusFactory struct {
	reg     prometheus.Registerer
	buckets []float64
}

// NewPrometheusFactory returns a factory that registers every collector it
// creates with reg. A nil reg uses the default registerer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		reg:     reg,
		buckets: prometheus.ExponentialBuckets(1, 4, 12),
	}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricName(name) + "_total",
		Help: "Tally " + name,
	})
	return register(f.reg, c)
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricName(name),
		Help:    "Tally " + name,
		Buckets: f.buckets,
	})
	return register(f.reg, h)
}

// register adds c to reg, returning the already registered collector when
// the same name was registered earlier.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
