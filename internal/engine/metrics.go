package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scheduler's Prometheus collectors.
type Metrics struct {
	queuePending  prometheus.Gauge
	queueInFlight prometheus.Gauge
	analyses      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	batchSize     prometheus.Histogram
	loopFailures  prometheus.Counter
	forwarded     prometheus.Counter
}

// NewMetrics registers collectors on reg. A nil reg uses a private registry,
// so independent engines (tests) never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		queuePending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "queue",
			Name:      "pending",
			Help:      "Projects waiting for analysis",
		}),
		queueInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "queue",
			Name:      "in_flight",
			Help:      "Projects currently being analyzed",
		}),
		analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "analysis",
			Name:      "total",
			Help:      "Completed project analyses by project kind and outcome",
		}, []string{"kind", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vigil",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Time spent analyzing one project",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}, []string{"kind"}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vigil",
			Subsystem: "scheduler",
			Name:      "batch_size",
			Help:      "Projects drained from the queue per batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		loopFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "scheduler",
			Name:      "loop_failures_total",
			Help:      "Failures recovered in the scheduler loop outside project analysis",
		}),
		forwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "scheduler",
			Name:      "forwarded_messages_total",
			Help:      "Diagnostic messages pushed to subscribers",
		}),
	}
}

func (m *Metrics) observeQueue(pending, inFlight int) {
	m.queuePending.Set(float64(pending))
	m.queueInFlight.Set(float64(inFlight))
}
