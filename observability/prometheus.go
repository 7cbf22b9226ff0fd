package observability

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var _ MetricFactory = (*PrometheusFactory)(nil)

// PrometheusFactory is a MetricFactory backed by a Prometheus registerer.
// Dotted metric names are rewritten to Prometheus form, so
// "ledger.posting.committed" becomes "ledger_posting_committed_total".
type PrometheusFactory struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	collectors map[string]prometheus.Collector
}

// NewPrometheusFactory creates a factory registering into reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{reg: reg, collectors: make(map[string]prometheus.Collector)}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Count of " + name + ".",
	})
	return f.register(name, c).(prometheus.Counter)
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + name + ".",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})
	return f.register(name, h).(prometheus.Histogram)
}

// Gauge implements MetricFactory.
func (f *PrometheusFactory) Gauge(name string) Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: promName(name),
		Help: "Current " + name + ".",
	})
	return f.register(name, g).(prometheus.Gauge)
}

// register returns the collector already known under name, or registers c.
// A collector registered elsewhere under the same name is reused.
func (f *PrometheusFactory) register(name string, c prometheus.Collector) prometheus.Collector {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.collectors[name]; ok {
		return existing
	}
	if err := f.reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
		c = already.ExistingCollector
	}
	f.collectors[name] = c
	return c
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
