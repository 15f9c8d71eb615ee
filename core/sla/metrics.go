package sla

import "github.com/prometheus/client_golang/prometheus"

var violationsTotal *prometheus.CounterVec

func newCollectors() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_violations_total",
			Help: "SLA violations detected by the watchdog",
		},
		[]string{"kind"},
	)
}

func init() {
	violationsTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers SLA metrics on reg or the default registerer.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(violationsTotal)
}

// ResetMetrics reinitializes collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	violationsTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
