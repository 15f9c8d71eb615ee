package dispatch

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/gridcourier/core/model"
)

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	// touch metrics so they are exported
	matchOutcomes.WithLabelValues("assigned").Inc()
	queueDrains.WithLabelValues("failed").Inc()
	routeDistance.Observe(3)
	matchDuration.Observe(0.01)
	queueDepth.Set(2)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[*mf.Name] = true
	}
	expected := []string{
		"dispatch_match_outcomes_total",
		"dispatch_route_distance_cells",
		"dispatch_match_duration_seconds",
		"dispatch_queue_depth",
		"dispatch_queue_drains_total",
	}
	for _, n := range expected {
		if !names[n] {
			t.Errorf("metric %s not registered", n)
		}
	}
}

func TestMatcherRecordsOutcomes(t *testing.T) {
	f := newFixture(t, openMap(t, 5), 1)
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)

	_, _ = f.m.Assign(f.order(0, 0, 1), true)
	f.courier("c", 0, 0, model.Walker, 0)
	_, _ = f.m.Assign(f.order(0, 0, 20), true)
	if got := testutil.ToFloat64(matchOutcomes.WithLabelValues("all_busy")); got != 1 {
		t.Fatalf("all_busy = %v", got)
	}
	if got := testutil.ToFloat64(matchOutcomes.WithLabelValues("weight_too_heavy")); got != 1 {
		t.Fatalf("weight_too_heavy = %v", got)
	}
	if got := testutil.ToFloat64(queueDepth); got != 2 {
		t.Fatalf("queue depth = %v", got)
	}
	f.m.ProcessQueue()
	if got := testutil.ToFloat64(matchOutcomes.WithLabelValues("assigned")); got != 1 {
		t.Fatalf("assigned = %v", got)
	}
	if got := testutil.ToFloat64(queueDepth); got != 1 {
		t.Fatalf("queue depth after sweep = %v", got)
	}
}

func TestMatchDurationIgnoresInjectedClock(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)

	past := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMatcher(openMap(t, 5), nil, Config{}, WithClock(func() time.Time { return past }))
	c, err := model.NewCourier("c", model.Location{}, model.Car)
	if err != nil {
		t.Fatalf("courier: %v", err)
	}
	if err := m.AddCourier(c); err != nil {
		t.Fatalf("add courier: %v", err)
	}
	o, err := model.NewOrder("o", model.Location{X: 2, Y: 2}, 1, past)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if _, err := m.Assign(o, true); err != nil {
		t.Fatalf("assign: %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "dispatch_match_duration_seconds" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 1 {
			t.Fatalf("samples = %d", h.GetSampleCount())
		}
		if sum := h.GetSampleSum(); sum < 0 || sum > 1 {
			t.Fatalf("match duration %v s measured against the injected clock", sum)
		}
		return
	}
	t.Fatalf("dispatch_match_duration_seconds not gathered")
}
