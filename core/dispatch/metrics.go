package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	matchOutcomes *prometheus.CounterVec
	routeDistance prometheus.Histogram
	matchDuration prometheus.Histogram
	queueDepth    prometheus.Gauge
	queueDrains   *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, prometheus.Histogram, prometheus.Gauge, *prometheus.CounterVec) {
	out := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_match_outcomes_total",
			Help: "Assignment attempts by outcome",
		},
		[]string{"outcome"},
	)
	dist := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_route_distance_cells",
			Help:    "Walking distance between the selected courier and the order origin",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_match_duration_seconds",
			Help:    "Time spent ranking couriers for one order",
			Buckets: prometheus.DefBuckets,
		},
	)
	depth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_queue_depth",
			Help: "Orders waiting in the backlog",
		},
	)
	drains := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_queue_drains_total",
			Help: "Backlog entries retried on courier release or sweep",
		},
		[]string{"result"},
	)
	return out, dist, dur, depth, drains
}

func init() {
	matchOutcomes, routeDistance, matchDuration, queueDepth, queueDrains = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(matchOutcomes, routeDistance, matchDuration, queueDepth, queueDrains)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	matchOutcomes, routeDistance, matchDuration, queueDepth, queueDrains = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func outcomeLabel(r Reason) string {
	switch r {
	case ReasonAllBusy:
		return "all_busy"
	case ReasonWeightTooHeavy:
		return "weight_too_heavy"
	case ReasonNoPathFound:
		return "no_path_found"
	default:
		return "assigned"
	}
}
