package sla

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridcourier/core/events"
	"github.com/kilianp07/gridcourier/core/model"
	"github.com/kilianp07/gridcourier/core/queue"
	"github.com/kilianp07/gridcourier/internal/eventbus"
)

type fakeQueue struct {
	mu      sync.Mutex
	entries []queue.Entry
	calls   int
}

func (f *fakeQueue) Queue() []queue.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]queue.Entry(nil), f.entries...)
}

func (f *fakeQueue) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOrders []*model.Order

func (f fakeOrders) DeliveredOrders() []*model.Order { return f }

type panicQueue struct{ n atomic.Int32 }

func (p *panicQueue) Queue() []queue.Entry {
	if p.n.Add(1) == 1 {
		panic("broken snapshot")
	}
	return nil
}

func entry(t *testing.T, id string, at time.Time) queue.Entry {
	t.Helper()
	o, err := model.NewOrder(id, model.Location{}, 1, at)
	require.NoError(t, err)
	return queue.Entry{Order: o, EnqueuedAt: at}
}

func TestQueueWaitBoundary(t *testing.T) {
	ResetMetrics(nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := Config{QueueWaitMS: 60000, DeliveryMS: 1000, IntervalMS: 10}
	q := &fakeQueue{entries: []queue.Entry{
		entry(t, "late", now.Add(-cfg.QueueWait()-time.Millisecond)),
		entry(t, "fine", now.Add(-cfg.QueueWait()+time.Millisecond)),
	}}
	bus := eventbus.New()
	var got []events.ViolationEvent
	bus.Subscribe(events.SLAViolation, func(e eventbus.Event) error {
		got = append(got, e.Data.(events.ViolationEvent))
		return nil
	})
	w := New(cfg, q, nil, bus, WithClock(func() time.Time { return now }))

	w.Check()
	require.Len(t, got, 1)
	assert.Equal(t, events.ViolationQueueWait, got[0].Kind)
	assert.Equal(t, "late", got[0].OrderID)
	assert.Equal(t, cfg.QueueWait()+time.Millisecond, got[0].Duration)
	assert.Equal(t, int64(1), w.Violations())
}

func TestDeliveryTime(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	deliver := func(id string, took time.Duration) *model.Order {
		o, err := model.NewOrder(id, model.Location{}, 1, t0)
		require.NoError(t, err)
		require.NoError(t, o.AssignTo("c", t0))
		require.NoError(t, o.Advance(model.OrderPickedUp, t0))
		require.NoError(t, o.Advance(model.OrderInTransit, t0))
		require.NoError(t, o.Advance(model.OrderDelivered, t0.Add(took)))
		return o
	}
	pending, _ := model.NewOrder("pending", model.Location{}, 1, t0.Add(-24*time.Hour))
	orders := fakeOrders{deliver("slow", 2*time.Hour), deliver("quick", 10*time.Minute), pending}

	w := New(Config{DeliveryMS: 3600000}, nil, orders, nil)
	v := w.Check()
	require.Len(t, v, 1)
	assert.Equal(t, events.ViolationDeliveryTime, v[0].Kind)
	assert.Equal(t, "slow", v[0].OrderID)
	assert.Equal(t, 2*time.Hour, v[0].Duration)
}

func TestCheckDoesNotMutate(t *testing.T) {
	now := time.Now()
	e := entry(t, "late", now.Add(-time.Hour))
	q := &fakeQueue{entries: []queue.Entry{e}}
	w := New(Config{QueueWaitMS: 1}, q, nil, nil, WithClock(func() time.Time { return now }))
	w.Check()
	w.Check()
	assert.Equal(t, model.OrderPending, e.Order.Status)
	assert.Len(t, q.Queue(), 1)
	assert.Equal(t, int64(2), w.Violations(), "every tick reports open breaches")
}

func TestStartStop(t *testing.T) {
	q := &fakeQueue{}
	w := New(Config{IntervalMS: 5}, q, nil, nil)
	ctx := context.Background()
	w.Start(ctx)
	w.Start(ctx)
	assert.True(t, w.Running())
	assert.Eventually(t, func() bool { return q.Calls() >= 2 }, time.Second, 5*time.Millisecond)

	w.Stop()
	w.Stop()
	assert.False(t, w.Running())
	calls := q.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, q.Calls(), "no ticks after Stop")

	// restart after stop
	w.Start(ctx)
	assert.Eventually(t, func() bool { return q.Calls() > calls }, time.Second, 5*time.Millisecond)
	w.Stop()
}

func TestContextCancelStopsLoop(t *testing.T) {
	q := &fakeQueue{}
	w := New(Config{IntervalMS: 5}, q, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	require.True(t, w.Running())
	cancel()
	assert.Eventually(t, func() bool { return !w.Running() }, time.Second, 5*time.Millisecond)
	calls := q.Calls()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, q.Calls())

	w.Start(context.Background())
	defer w.Stop()
	assert.True(t, w.Running())
	assert.Eventually(t, func() bool { return q.Calls() > calls }, time.Second, 5*time.Millisecond)
	w.Stop()
	assert.False(t, w.Running())
}

func TestPanickingTickKeepsRunning(t *testing.T) {
	p := &panicQueue{}
	w := New(Config{IntervalMS: 5}, p, nil, nil)
	w.Start(context.Background())
	defer w.Stop()
	assert.Eventually(t, func() bool { return p.n.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.Running())
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 10*time.Second, c.Interval())
	assert.Equal(t, 5*time.Minute, c.QueueWait())
	assert.Equal(t, time.Hour, c.Delivery())
	assert.NoError(t, c.Validate())
	assert.Error(t, Config{QueueWaitMS: -1}.Validate())
}
