package spanz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flush results recorded in the flushes counter.
const (
	flushSuccess  = "success"
	flushError    = "error"
	flushSkipped  = "skipped"
	flushTooLarge = "too_large"
	flushEmpty    = "empty"
)

// Metrics exposes tracer activity as Prometheus metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SpansFinished prometheus.Counter
	SpansDropped  prometheus.Counter
	Flushes       *prometheus.CounterVec
	ReportBytes   prometheus.Histogram
	ClockOffset   prometheus.Gauge
}

// NewMetrics creates the tracer metrics and registers them with reg. A nil
// reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SpansFinished: f.NewCounter(prometheus.CounterOpts{
			Name: "spanz_spans_finished_total",
			Help: "Total number of finished spans handed to the tracer",
		}),
		SpansDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "spanz_spans_dropped_total",
			Help: "Total number of spans dropped before reaching the collector",
		}),
		Flushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spanz_flushes_total",
			Help: "Total number of flush attempts by result",
		}, []string{"result"}),
		ReportBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "spanz_report_bytes",
			Help:    "Encoded report size in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
		ClockOffset: f.NewGauge(prometheus.GaugeOpts{
			Name: "spanz_clock_offset_micros",
			Help: "Estimated offset between the collector clock and the local clock",
		}),
	}
}

func (m *Metrics) spanFinished() {
	if m == nil {
		return
	}
	m.SpansFinished.Inc()
}

func (m *Metrics) spansDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SpansDropped.Add(float64(n))
}

func (m *Metrics) flush(result string, bytes int) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.ReportBytes.Observe(float64(bytes))
	}
}

func (m *Metrics) clockOffset(micros int64) {
	if m == nil {
		return
	}
	m.ClockOffset.Set(float64(micros))
}
