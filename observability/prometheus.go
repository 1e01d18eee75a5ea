package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusFactory is a MetricFactory backed by a Prometheus registry.
// Metric names are normalized to Prometheus conventions (dots become
// underscores).
type PrometheusFactory struct {
	registerer prometheus.Registerer
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory creates a factory registering metrics with the
// given registerer. Pass prometheus.DefaultRegisterer to use the default
// registry.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{registerer: reg}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	return promauto.With(f.registerer).NewCounter(prometheus.CounterOpts{
		Name: promName(name),
		Help: name,
	})
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	return promauto.With(f.registerer).NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    name,
		Buckets: prometheus.DefBuckets,
	})
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
