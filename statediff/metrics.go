package statediff

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks diff computation and application.
type Metrics struct {
	diffs         prometheus.Counter
	applies       prometheus.Counter
	diffDuration  prometheus.Histogram
	applyDuration prometheus.Histogram
}

// NewMetrics constructs and registers the differ metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "elastic_amm",
			Subsystem: "statediff",
			Name:      "diffs_total",
			Help:      "Number of state diffs computed.",
		}),
		applies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "elastic_amm",
			Subsystem: "statediff",
			Name:      "applies_total",
			Help:      "Number of state diffs applied.",
		}),
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "elastic_amm",
			Subsystem: "statediff",
			Name:      "diff_duration_seconds",
			Help:      "Time spent computing a state diff.",
			Buckets:   prometheus.DefBuckets,
		}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "elastic_amm",
			Subsystem: "statediff",
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying a state diff.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.diffs, m.applies, m.diffDuration, m.applyDuration)
	return m
}
