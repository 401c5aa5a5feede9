package order

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics counts stock response processing outcomes. A nil receiver
// is a no-op so tests and wiring without metrics stay simple.
type ConsumerMetrics struct {
	Processed    *prometheus.CounterVec
	ProcessingMS *prometheus.HistogramVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderservice",
		Subsystem: "consumer",
		Name:      "stock_responses_total",
		Help:      "Total number of stock response messages by outcome.",
	}, []string{"event_type", "outcome"})
	processing := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orderservice",
		Subsystem: "consumer",
		Name:      "stock_response_duration_ms",
		Help:      "Stock response processing latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"event_type"})

	reg.MustRegister(processed, processing)
	return &ConsumerMetrics{Processed: processed, ProcessingMS: processing}
}

func (m *ConsumerMetrics) Observe(eventType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Processed.WithLabelValues(eventType, outcome).Inc()
	if d > 0 {
		m.ProcessingMS.WithLabelValues(eventType).Observe(float64(d.Milliseconds()))
	}
}
