package capture

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks capture pipeline outcomes.
type Metrics struct {
	captures *prometheus.CounterVec
	duration prometheus.Histogram
	launches prometheus.Counter
	inFlight prometheus.Gauge
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// NewMetrics builds a metrics recorder on the default registry.
func NewMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetricsWithRegisterer allows tests to provide a dedicated registry.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		captures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webshot",
			Subsystem: "capture",
			Name:      "requests_total",
			Help:      "Capture requests by output format and outcome (ok or the error kind)",
		}, []string{"format", "outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "webshot",
			Subsystem: "capture",
			Name:      "duration_seconds",
			Help:      "Wall time of whole capture requests, including retries and encoding",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		launches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "webshot",
			Subsystem: "browser",
			Name:      "launches_total",
			Help:      "Browser subprocesses launched, including retry attempts",
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "webshot",
			Subsystem: "capture",
			Name:      "in_flight",
			Help:      "Capture requests currently holding a render slot",
		}),
	}
}

func (m *Metrics) recordCapture(format string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = Kind(err)
	}
	m.captures.WithLabelValues(format, outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) recordLaunch() {
	if m == nil {
		return
	}
	m.launches.Inc()
}
