// Package dispatch matches orders to couriers by walking distance and load,
// and owns the backlog of orders no courier could take.
package dispatch

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/gridcourier/core/events"
	"github.com/kilianp07/gridcourier/core/grid"
	"github.com/kilianp07/gridcourier/core/model"
	"github.com/kilianp07/gridcourier/core/queue"
	"github.com/kilianp07/gridcourier/core/routing"
	"github.com/kilianp07/gridcourier/infra/logger"
	"github.com/kilianp07/gridcourier/internal/eventbus"
)

// Publisher receives the events produced by the matcher.
type Publisher interface {
	Publish(eventbus.Event) (eventbus.Event, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(e eventbus.Event) (eventbus.Event, error) { return e, nil }

// Matcher owns the courier roster and the backlog. Every exported method
// takes the matcher lock, so roster and queue changes are serialized.
// Events are published after the lock is released.
type Matcher struct {
	mu       sync.Mutex
	router   *routing.Router
	couriers map[string]*model.Courier
	backlog  *queue.Backlog

	threshold  float64
	candidates int
	bus        Publisher
	log        logger.Logger
	now        func() time.Time
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithClock sets the clock used for order timestamps and queue ages.
func WithClock(now func() time.Time) Option { return func(m *Matcher) { m.now = now } }

// WithLogger sets the matcher logger.
func WithLogger(l logger.Logger) Option { return func(m *Matcher) { m.log = l } }

// WithRouter replaces the default uniform-cost router.
func WithRouter(r *routing.Router) Option { return func(m *Matcher) { m.router = r } }

// NewMatcher creates a Matcher over gridMap. A nil bus discards events.
func NewMatcher(gridMap *grid.Map, bus Publisher, cfg Config, opts ...Option) *Matcher {
	cfg.SetDefaults()
	if bus == nil {
		bus = nopPublisher{}
	}
	m := &Matcher{
		router:     routing.New(gridMap),
		couriers:   make(map[string]*model.Courier),
		threshold:  cfg.Threshold(),
		candidates: cfg.PathCandidates,
		bus:        bus,
		log:        logger.NopLogger{},
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.backlog = queue.New(func() time.Time { return m.now() })
	return m
}

// Map returns the grid used for routing.
func (m *Matcher) Map() *grid.Map { return m.router.Map() }

// batch collects events while the lock is held.
type batch []eventbus.Event

func (b *batch) add(typ string, data any) {
	*b = append(*b, eventbus.Event{Type: typ, Data: data})
}

func (m *Matcher) publish(b batch) {
	for _, e := range b {
		if _, err := m.bus.Publish(e); err != nil {
			m.log.Errorw("publish event", map[string]any{"event_type": e.Type, "error": err.Error()})
		}
	}
}

// Assign tries to hand order to the best free courier. When no courier
// qualifies and autoQueue is set, the order is appended to the backlog.
func (m *Matcher) Assign(order *model.Order, autoQueue bool) (Result, error) {
	m.mu.Lock()
	var evs batch
	res, err := m.assign(order, autoQueue, &evs)
	queueDepth.Set(float64(m.backlog.Size()))
	m.mu.Unlock()
	m.publish(evs)
	return res, err
}

func (m *Matcher) assign(order *model.Order, autoQueue bool, evs *batch) (Result, error) {
	if !order.IsMatchable() {
		return Result{}, fmt.Errorf("%w: order %s is %s", ErrAlreadyAssigned, order.ID, order.Status)
	}
	start := time.Now()
	defer func() { matchDuration.Observe(time.Since(start).Seconds()) }()

	res := Result{OrderID: order.ID}
	var free []*model.Courier
	for _, c := range m.couriers {
		if c.IsFree() {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		return m.unmatched(order, res, ReasonAllBusy, autoQueue, evs)
	}

	var suitable []*model.Courier
	for _, c := range free {
		if c.CanCarry(order.Weight) {
			suitable = append(suitable, c)
		}
	}
	if len(suitable) == 0 {
		res.OrderWeight = order.Weight
		for _, c := range free {
			res.FreeCapacities = append(res.FreeCapacities, c.Transport.MaxWeight)
		}
		sort.Float64s(res.FreeCapacities)
		return m.unmatched(order, res, ReasonWeightTooHeavy, autoQueue, evs)
	}

	ranked := m.rank(order, suitable)
	if len(ranked) == 0 {
		return m.unmatched(order, res, ReasonNoPathFound, autoQueue, evs)
	}

	sel := selectCandidate(ranked, m.threshold)
	m.attachPaths(order.Origin, ranked, sel)
	chosen := ranked[sel]
	courier := m.couriers[chosen.CourierID]

	if err := m.bind(order, courier, evs); err != nil {
		return Result{}, err
	}
	if _, err := m.backlog.RemoveByID(order.ID); err == nil {
		evs.add(events.QueueUpdated, events.QueueEvent{Action: events.QueueRemoved, OrderID: order.ID, Size: m.backlog.Size()})
	}

	res.Assigned = true
	res.CourierID = chosen.CourierID
	res.Distance = chosen.Distance
	res.Transport = chosen.Transport
	res.Path = chosen.Path
	res.Candidates = ranked[:min(m.candidates, len(ranked))]
	evs.add(events.OrderAssigned, events.AssignmentEvent{
		Order:     order.Clone(),
		CourierID: courier.ID,
		Distance:  chosen.Distance,
		Transport: chosen.Transport,
		Path:      chosen.Path,
	})
	matchOutcomes.WithLabelValues(outcomeLabel(ReasonNone)).Inc()
	routeDistance.Observe(chosen.Distance)
	m.log.Infow("order assigned", map[string]any{
		"order_id": order.ID, "courier_id": courier.ID, "distance": chosen.Distance, "candidates": len(ranked),
	})
	return res, nil
}

// rank resolves walking distances for suitable couriers, nearest first.
// Equal distances are ordered by courier id.
func (m *Matcher) rank(order *model.Order, suitable []*model.Courier) []Candidate {
	targets := make([]model.Location, len(suitable))
	for i, c := range suitable {
		targets[i] = c.Location
	}
	dists, err := m.router.DistancesToMany(order.Origin, targets)
	if err != nil {
		m.log.Warnw("order origin not routable", map[string]any{"order_id": order.ID, "error": err.Error()})
		return nil
	}
	ranked := make([]Candidate, 0, len(dists))
	for _, c := range suitable {
		d, ok := dists[c.Location]
		if !ok {
			continue
		}
		ranked = append(ranked, Candidate{
			CourierID:      c.ID,
			Distance:       d,
			CompletedToday: c.CompletedToday,
			Transport:      c.Transport.Name,
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Distance != ranked[j].Distance {
			return ranked[i].Distance < ranked[j].Distance
		}
		return ranked[i].CourierID < ranked[j].CourierID
	})
	return ranked
}

// selectCandidate walks the ranked list while candidates stay within
// threshold of the nearest one and keeps the least loaded courier seen.
// The band is always measured from the nearest distance.
func selectCandidate(ranked []Candidate, threshold float64) int {
	sel := 0
	anchor := ranked[0].Distance
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Distance-anchor > threshold {
			break
		}
		if ranked[i].CompletedToday < ranked[sel].CompletedToday {
			sel = i
		}
	}
	return sel
}

// attachPaths reconstructs paths for the top candidates and the selection.
func (m *Matcher) attachPaths(origin model.Location, ranked []Candidate, sel int) {
	for i := range ranked {
		if i >= m.candidates && i != sel {
			continue
		}
		c := m.couriers[ranked[i].CourierID]
		route, err := m.router.Path(c.Location, origin)
		if err != nil {
			m.log.Warnw("path reconstruction failed", map[string]any{"courier_id": c.ID, "error": err.Error()})
			continue
		}
		ranked[i].Path = route.Path
	}
}

// bind moves order to assigned and courier to busy.
func (m *Matcher) bind(order *model.Order, courier *model.Courier, evs *batch) error {
	if err := courier.AssignOrder(order.ID); err != nil {
		return err
	}
	if err := order.AssignTo(courier.ID, m.now()); err != nil {
		_, _ = courier.Release()
		return err
	}
	evs.add(events.CourierStatusChanged, events.CourierEvent{Courier: courier.Clone(), Previous: model.CourierFree})
	return nil
}

func (m *Matcher) unmatched(order *model.Order, res Result, reason Reason, autoQueue bool, evs *batch) (Result, error) {
	res.Reason = reason
	matchOutcomes.WithLabelValues(outcomeLabel(reason)).Inc()
	m.log.Debugw("order not matched", map[string]any{"order_id": order.ID, "reason": string(reason)})
	if !autoQueue {
		return res, nil
	}
	if m.backlog.Contains(order.ID) {
		res.Queued = true
		return res, nil
	}
	if err := m.enqueue(order, reason, evs); err != nil {
		return res, err
	}
	res.Queued = true
	return res, nil
}

func (m *Matcher) enqueue(order *model.Order, reason Reason, evs *batch) error {
	if _, err := m.backlog.Enqueue(order); err != nil {
		return err
	}
	size := m.backlog.Size()
	evs.add(events.OrderQueued, events.QueuedEvent{Order: order.Clone(), Reason: string(reason), QueueSize: size})
	evs.add(events.QueueUpdated, events.QueueEvent{Action: events.QueueAdded, OrderID: order.ID, Size: size})
	return nil
}

// Enqueue appends a pending order to the backlog without trying to match it.
func (m *Matcher) Enqueue(order *model.Order) error {
	if !order.IsMatchable() {
		return fmt.Errorf("%w: order %s is %s", ErrAlreadyAssigned, order.ID, order.Status)
	}
	m.mu.Lock()
	var evs batch
	err := m.enqueue(order, ReasonNone, &evs)
	queueDepth.Set(float64(m.backlog.Size()))
	m.mu.Unlock()
	m.publish(evs)
	return err
}

// CompleteOrder frees courierID, counts the delivery and offers the queue
// head to the courier when it can carry it. Only the head is considered.
func (m *Matcher) CompleteOrder(courierID string) (Completion, error) {
	m.mu.Lock()
	var evs batch
	comp, err := m.complete(courierID, &evs)
	queueDepth.Set(float64(m.backlog.Size()))
	m.mu.Unlock()
	m.publish(evs)
	return comp, err
}

func (m *Matcher) complete(courierID string, evs *batch) (Completion, error) {
	c, ok := m.couriers[courierID]
	if !ok {
		return Completion{}, fmt.Errorf("%w: %s", ErrCourierNotFound, courierID)
	}
	orderID, err := c.CompleteOrder()
	if err != nil {
		return Completion{}, err
	}
	evs.add(events.CourierStatusChanged, events.CourierEvent{Courier: c.Clone(), Previous: model.CourierBusy})
	comp := Completion{CourierID: courierID, OrderID: orderID}

	head, ok := m.backlog.PeekFront()
	if !ok {
		return comp, nil
	}
	if !c.CanCarry(head.Order.Weight) {
		comp.HeadTooHeavy = true
		m.log.Debugw("queue head too heavy for released courier", map[string]any{
			"courier_id": courierID, "order_id": head.Order.ID, "weight": head.Order.Weight,
		})
		return comp, nil
	}
	entry, _ := m.backlog.DequeueFront()
	res, err := m.assign(entry.Order, false, evs)
	switch {
	case err != nil:
		m.log.Errorw("drop unmatchable queue head", map[string]any{"order_id": entry.Order.ID, "error": err.Error()})
		evs.add(events.QueueUpdated, events.QueueEvent{Action: events.QueueRemoved, OrderID: entry.Order.ID, Size: m.backlog.Size()})
	case res.Assigned:
		queueDrains.WithLabelValues("succeeded").Inc()
		evs.add(events.QueueUpdated, events.QueueEvent{Action: events.QueueRemoved, OrderID: entry.Order.ID, Size: m.backlog.Size()})
		comp.Drained = &res
	default:
		// restore the head so the order keeps its place and age
		queueDrains.WithLabelValues("failed").Inc()
		if perr := m.backlog.PushFront(entry); perr != nil {
			return comp, perr
		}
		comp.Drained = &res
	}
	return comp, nil
}

// ReleaseCourier frees courierID without counting a delivery and without
// draining the backlog. It returns the order the courier held.
func (m *Matcher) ReleaseCourier(courierID string) (string, error) {
	m.mu.Lock()
	var evs batch
	c, ok := m.couriers[courierID]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrCourierNotFound, courierID)
	}
	orderID, err := c.Release()
	if err == nil {
		evs.add(events.CourierStatusChanged, events.CourierEvent{Courier: c.Clone(), Previous: model.CourierBusy})
	}
	m.mu.Unlock()
	m.publish(evs)
	return orderID, err
}

// ProcessQueue retries every queued order once. Orders that still cannot be
// matched go back to the tail keeping their enqueue time, so their relative
// order is unchanged after a full sweep.
func (m *Matcher) ProcessQueue() ProcessResult {
	m.mu.Lock()
	var evs batch
	var pr ProcessResult
	n := m.backlog.Size()
	for i := 0; i < n; i++ {
		entry, ok := m.backlog.DequeueFront()
		if !ok {
			break
		}
		pr.Processed++
		res, err := m.assign(entry.Order, false, &evs)
		switch {
		case err != nil:
			pr.Failed++
			m.log.Errorw("drop unmatchable queued order", map[string]any{"order_id": entry.Order.ID, "error": err.Error()})
			evs.add(events.QueueUpdated, events.QueueEvent{Action: events.QueueRemoved, OrderID: entry.Order.ID, Size: m.backlog.Size()})
		case res.Assigned:
			pr.Succeeded++
			queueDrains.WithLabelValues("succeeded").Inc()
			evs.add(events.QueueUpdated, events.QueueEvent{Action: events.QueueRemoved, OrderID: entry.Order.ID, Size: m.backlog.Size()})
		default:
			pr.Failed++
			queueDrains.WithLabelValues("failed").Inc()
			if err := m.backlog.Requeue(entry); err != nil {
				m.log.Errorw("requeue failed", map[string]any{"order_id": entry.Order.ID, "error": err.Error()})
			}
		}
	}
	pr.Remaining = m.backlog.Size()
	queueDepth.Set(float64(pr.Remaining))
	m.mu.Unlock()
	m.publish(evs)
	m.log.Infow("queue processed", map[string]any{
		"processed": pr.Processed, "succeeded": pr.Succeeded, "failed": pr.Failed, "remaining": pr.Remaining,
	})
	return pr
}

// ManualAssign binds order to a specific free courier able to carry it.
func (m *Matcher) ManualAssign(order *model.Order, courierID string) (Result, error) {
	if !order.IsMatchable() {
		return Result{}, fmt.Errorf("%w: order %s is %s", ErrAlreadyAssigned, order.ID, order.Status)
	}
	m.mu.Lock()
	var evs batch
	res, err := m.manualAssign(order, courierID, &evs)
	queueDepth.Set(float64(m.backlog.Size()))
	m.mu.Unlock()
	m.publish(evs)
	return res, err
}

func (m *Matcher) manualAssign(order *model.Order, courierID string, evs *batch) (Result, error) {
	c, ok := m.couriers[courierID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrCourierNotFound, courierID)
	}
	if !c.IsFree() {
		return Result{}, fmt.Errorf("courier %s: %w", courierID, ErrCourierBusy)
	}
	if !c.CanCarry(order.Weight) {
		return Result{}, fmt.Errorf("%w: weight %v exceeds %s capacity %v", ErrCourierUnsuitable, order.Weight, c.Transport.Name, c.Transport.MaxWeight)
	}
	res := Result{OrderID: order.ID, Assigned: true, CourierID: c.ID, Transport: c.Transport.Name}
	if route, err := m.router.Path(c.Location, order.Origin); err == nil {
		res.Distance = route.Distance
		res.Path = route.Path
	}
	if err := m.bind(order, c, evs); err != nil {
		return Result{}, err
	}
	if _, err := m.backlog.RemoveByID(order.ID); err == nil {
		evs.add(events.QueueUpdated, events.QueueEvent{Action: events.QueueRemoved, OrderID: order.ID, Size: m.backlog.Size()})
	}
	evs.add(events.OrderAssigned, events.AssignmentEvent{
		Order: order.Clone(), CourierID: c.ID, Distance: res.Distance, Transport: res.Transport, Path: res.Path, Manual: true,
	})
	return res, nil
}

// RemoveFromQueue drops orderID from the backlog. It reports whether the
// order was queued.
func (m *Matcher) RemoveFromQueue(orderID string) bool {
	m.mu.Lock()
	var evs batch
	_, err := m.backlog.RemoveByID(orderID)
	if err == nil {
		evs.add(events.QueueUpdated, events.QueueEvent{Action: events.QueueRemoved, OrderID: orderID, Size: m.backlog.Size()})
	}
	queueDepth.Set(float64(m.backlog.Size()))
	m.mu.Unlock()
	m.publish(evs)
	return err == nil
}

// Queue returns a snapshot of the backlog in FIFO order.
func (m *Matcher) Queue() []queue.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backlog.Entries()
}

// QueueStats returns backlog size and waiting times.
func (m *Matcher) QueueStats() queue.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backlog.Stats()
}
