package pool

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks pool operation counts and swap loop behavior.
type Metrics struct {
	swaps         prometheus.Counter
	mints         prometheus.Counter
	burns         prometheus.Counter
	shareBurns    prometheus.Counter
	tickCrossings prometheus.Counter
	swapSteps     prometheus.Histogram
}

// NewMetrics constructs and registers the pool metric set.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "elastic_amm",
			Name:      "swaps_total",
			Help:      "Number of committed swaps.",
		}),
		mints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "elastic_amm",
			Name:      "mints_total",
			Help:      "Number of committed position mints.",
		}),
		burns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "elastic_amm",
			Name:      "burns_total",
			Help:      "Number of committed position burns.",
		}),
		shareBurns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "elastic_amm",
			Name:      "reinvestment_share_burns_total",
			Help:      "Number of committed reinvestment share redemptions.",
		}),
		tickCrossings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "elastic_amm",
			Name:      "tick_crossings_total",
			Help:      "Number of initialized ticks crossed by swaps.",
		}),
		swapSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "elastic_amm",
			Name:      "swap_steps",
			Help:      "Per-swap count of tick-range computation steps.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	reg.MustRegister(m.swaps, m.mints, m.burns, m.shareBurns, m.tickCrossings, m.swapSteps)
	return m
}
