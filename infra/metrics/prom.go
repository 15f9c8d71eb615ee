package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/gridcourier/core/metrics"
)

// PromSink records dispatch activity in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	distance    prometheus.Histogram
	queue       prometheus.Gauge
	queueMoves  *prometheus.CounterVec
	deliveries  prometheus.Counter
	delivery    prometheus.Histogram
	violations  *prometheus.CounterVec
	couriers    *prometheus.GaugeVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_assignments_total",
			Help: "Orders bound to a courier",
		}, []string{"transport", "manual"}),
		distance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_assignment_distance_cells",
			Help:    "Route distance between courier and pickup at assignment",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "courier_backlog_size",
			Help: "Orders waiting in the backlog",
		}),
		queueMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_backlog_changes_total",
			Help: "Backlog changes by action",
		}, []string{"action"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_deliveries_total",
			Help: "Orders delivered",
		}),
		delivery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "courier_delivery_duration_seconds",
			Help:    "Time from order creation to delivery",
			Buckets: []float64{60, 300, 600, 1200, 1800, 3600, 7200},
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_sla_violation_events_total",
			Help: "SLA violation events seen on the bus",
		}, []string{"kind"}),
		couriers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courier_status",
			Help: "1 when the courier is busy, 0 when free",
		}, []string{"courier_id", "transport"}),
	}
	var err error
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.distance, err = register(reg, s.distance); err != nil {
		return nil, err
	}
	if s.queue, err = register(reg, s.queue); err != nil {
		return nil, err
	}
	if s.queueMoves, err = register(reg, s.queueMoves); err != nil {
		return nil, err
	}
	if s.deliveries, err = register(reg, s.deliveries); err != nil {
		return nil, err
	}
	if s.delivery, err = register(reg, s.delivery); err != nil {
		return nil, err
	}
	if s.violations, err = register(reg, s.violations); err != nil {
		return nil, err
	}
	if s.couriers, err = register(reg, s.couriers); err != nil {
		return nil, err
	}
	return s, nil
}

// register reuses an already registered collector of the same shape.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAssignment counts the assignment and observes its distance.
func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(ev.Transport, strconv.FormatBool(ev.Manual)).Inc()
	s.distance.Observe(ev.Distance)
	return nil
}

// RecordQueue tracks the backlog size.
func (s *PromSink) RecordQueue(ev coremetrics.QueueEvent) error {
	s.queue.Set(float64(ev.Size))
	s.queueMoves.WithLabelValues(ev.Action).Inc()
	return nil
}

// RecordCompletion counts a delivery.
func (s *PromSink) RecordCompletion(ev coremetrics.CompletionEvent) error {
	s.deliveries.Inc()
	s.delivery.Observe(ev.Duration.Seconds())
	return nil
}

// RecordViolation counts an SLA violation.
func (s *PromSink) RecordViolation(ev coremetrics.ViolationEvent) error {
	s.violations.WithLabelValues(ev.Kind).Inc()
	return nil
}

// RecordCourierStatus sets the per-courier busy gauge.
func (s *PromSink) RecordCourierStatus(ev coremetrics.CourierStatusEvent) error {
	v := 0.0
	if ev.Status == "busy" {
		v = 1
	}
	s.couriers.WithLabelValues(ev.CourierID, ev.Transport).Set(v)
	return nil
}
