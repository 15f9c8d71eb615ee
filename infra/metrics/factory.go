package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/gridcourier/core/metrics"
)

// NewSink builds the sinks enabled in cfg. It returns a NopSink when none
// are enabled and a MultiSink when several are.
func NewSink(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	var sinks []coremetrics.MetricsSink
	if cfg.PrometheusEnabled {
		s, err := NewPromSinkWithRegistry(reg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Influx.Enabled() {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg.Influx))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
