// Package sla periodically checks queue ages and delivery durations against
// configured thresholds.
package sla

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/gridcourier/core/events"
	"github.com/kilianp07/gridcourier/core/model"
	"github.com/kilianp07/gridcourier/core/queue"
	"github.com/kilianp07/gridcourier/infra/logger"
	"github.com/kilianp07/gridcourier/internal/eventbus"
)

// QueueSource exposes a snapshot of the backlog.
type QueueSource interface {
	Queue() []queue.Entry
}

// OrderSource exposes delivered orders.
type OrderSource interface {
	DeliveredOrders() []*model.Order
}

// Publisher receives violation events.
type Publisher interface {
	Publish(eventbus.Event) (eventbus.Event, error)
}

// Watchdog publishes SLA_VIOLATION events. It only reads state.
type Watchdog struct {
	cfg    Config
	queue  QueueSource
	orders OrderSource
	bus    Publisher
	log    logger.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	violations atomic.Int64
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithClock sets the clock used to age queue entries.
func WithClock(now func() time.Time) Option { return func(w *Watchdog) { w.now = now } }

// WithLogger sets the watchdog logger.
func WithLogger(l logger.Logger) Option { return func(w *Watchdog) { w.log = l } }

// New creates a stopped Watchdog.
func New(cfg Config, q QueueSource, orders OrderSource, bus Publisher, opts ...Option) *Watchdog {
	cfg.SetDefaults()
	w := &Watchdog{cfg: cfg, queue: q, orders: orders, bus: bus, log: logger.NopLogger{}, now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start launches the periodic check. Calling Start on a running watchdog
// does nothing.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done
	go w.loop(ctx, done)
	w.log.Infow("sla watchdog started", map[string]any{"interval": w.cfg.Interval().String()})
}

// Stop cancels the periodic check and waits for the current tick to end.
// It is safe to call more than once.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.log.Infof("sla watchdog stopped")
}

// Running reports whether the periodic check is active.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Violations returns the number of violations reported so far.
func (w *Watchdog) Violations() int64 { return w.violations.Load() }

// loop ticks until ctx ends. A parent cancellation clears the running
// state so Start works again without a Stop.
func (w *Watchdog) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		w.mu.Lock()
		if w.done == done {
			w.cancel()
			w.cancel, w.done = nil, nil
		}
		w.mu.Unlock()
	}()
	ticker := time.NewTicker(w.cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick runs one check; a panic is logged so later ticks still run.
func (w *Watchdog) tick() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorw("sla check panicked", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()
	w.Check()
}

// Check scans the backlog and delivered orders once and publishes a
// violation for each breach.
func (w *Watchdog) Check() []events.ViolationEvent {
	now := w.now()
	var out []events.ViolationEvent
	if w.queue != nil {
		limit := w.cfg.QueueWait()
		for _, e := range w.queue.Queue() {
			if wait := e.Wait(now); wait > limit {
				out = append(out, events.ViolationEvent{
					Kind: events.ViolationQueueWait, OrderID: e.Order.ID, Duration: wait, Threshold: limit,
				})
			}
		}
	}
	if w.orders != nil {
		limit := w.cfg.Delivery()
		for _, o := range w.orders.DeliveredOrders() {
			if o.Status != model.OrderDelivered {
				continue
			}
			if d := o.Duration(); d > limit {
				out = append(out, events.ViolationEvent{
					Kind: events.ViolationDeliveryTime, OrderID: o.ID, Duration: d, Threshold: limit,
				})
			}
		}
	}
	for _, v := range out {
		w.report(v)
	}
	return out
}

func (w *Watchdog) report(v events.ViolationEvent) {
	w.violations.Add(1)
	violationsTotal.WithLabelValues(v.Kind).Inc()
	w.log.Warnw("sla violation", map[string]any{
		"kind": v.Kind, "order_id": v.OrderID, "duration_ms": v.Duration.Milliseconds(),
	})
	if w.bus == nil {
		return
	}
	if _, err := w.bus.Publish(eventbus.Event{Type: events.SLAViolation, Data: v}); err != nil {
		w.log.Errorw("publish sla violation", map[string]any{"order_id": v.OrderID, "error": err.Error()})
	}
}
