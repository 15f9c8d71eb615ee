// Package app wires the dispatch engine to persistence, metrics and the
// real-time relay, and exposes the request-level operations.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridcourier/config"
	"github.com/kilianp07/gridcourier/core/dispatch"
	"github.com/kilianp07/gridcourier/core/events"
	"github.com/kilianp07/gridcourier/core/grid"
	coremetrics "github.com/kilianp07/gridcourier/core/metrics"
	"github.com/kilianp07/gridcourier/core/model"
	"github.com/kilianp07/gridcourier/core/queue"
	"github.com/kilianp07/gridcourier/core/sla"
	corestore "github.com/kilianp07/gridcourier/core/store"
	"github.com/kilianp07/gridcourier/infra/logger"
	"github.com/kilianp07/gridcourier/infra/metrics"
	"github.com/kilianp07/gridcourier/infra/mqtt"
	infrastore "github.com/kilianp07/gridcourier/infra/store"
	"github.com/kilianp07/gridcourier/internal/eventbus"
)

// defaultFleet is cycled when seeding couriers on first start.
var defaultFleet = []model.Transport{model.Walker, model.Bicycle, model.Bicycle, model.Scooter, model.Car}

// Service owns the order book and drives the matcher. Every call into the
// matcher happens with mu held, so orders shared with the backlog are only
// mutated under mu. Events raised under mu reach the bus once it is released.
type Service struct {
	cfg *config.Config

	mu      sync.Mutex
	orders  map[string]*model.Order
	matcher *dispatch.Matcher
	pending []eventbus.Event
	pubMu   sync.Mutex
	simMu   sync.Mutex

	gridMap    *grid.Map
	bus        *eventbus.Bus
	store      corestore.Store
	watchdog   *sla.Watchdog
	throughput *coremetrics.Throughput
	log        logger.Logger
	now        func() time.Time
	rnd        *rand.Rand
	registerer prometheus.Registerer

	dirty     chan struct{}
	quit      chan struct{}
	saverDone chan struct{}
	closeOnce sync.Once
}

// Option customizes a Service.
type Option func(*Service)

// WithStore replaces the store built from the configuration.
func WithStore(s corestore.Store) Option { return func(svc *Service) { svc.store = s } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(svc *Service) { svc.now = now } }

// WithRand sets the random source used for map generation and fleet seeding.
func WithRand(r *rand.Rand) Option { return func(svc *Service) { svc.rnd = r } }

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option { return func(svc *Service) { svc.log = l } }

// WithRegisterer sets where Prometheus sinks register. Defaults to the
// global registerer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(svc *Service) { svc.registerer = r }
}

// New builds a Service and restores its state: the map is loaded or
// generated, the roster is loaded or seeded, and pending orders are queued
// again.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{
		cfg:        cfg,
		orders:     make(map[string]*model.Order),
		log:        logger.New("service"),
		now:        time.Now,
		registerer: prometheus.DefaultRegisterer,
		dirty:      make(chan struct{}, 1),
		quit:       make(chan struct{}),
		saverDone:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.rnd == nil {
		seed := cfg.Grid.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.rnd = rand.New(rand.NewSource(seed))
	}
	if s.store == nil {
		st, err := infrastore.New(cfg.Store.Backend, cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.store = st
	}
	s.bus = eventbus.New(eventbus.WithClock(s.now), eventbus.WithLogger(logger.New("eventbus")))
	s.throughput = coremetrics.NewThroughput(cfg.Metrics.Window(), s.now)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.restore(ctx); err != nil {
		_ = s.store.Close()
		return nil, err
	}
	s.drain()
	s.watchdog = sla.New(cfg.SLA, s, s, s.bus,
		sla.WithClock(s.now), sla.WithLogger(logger.New("sla")))
	go s.saver()
	return s, nil
}

func (s *Service) restore(ctx context.Context) error {
	m, err := s.store.LoadMap(ctx)
	if err == nil && m == nil {
		err = corestore.ErrNotFound
	}
	switch {
	case errors.Is(err, corestore.ErrNotFound):
		gen := grid.NewGenerator(s.rnd)
		m, err = gen.GenerateBest(s.cfg.Grid.Size, s.cfg.Grid.Wall(), s.cfg.Grid.Attempts)
		if err != nil {
			return fmt.Errorf("generate map: %w", err)
		}
		if err := s.store.SaveMap(ctx, m); err != nil {
			return fmt.Errorf("save map: %w", err)
		}
		s.log.Infow("map generated", map[string]any{"size": m.Size(), "walkable": m.CountWalkable()})
	case err != nil:
		return fmt.Errorf("load map: %w", err)
	default:
		s.log.Infow("map loaded", map[string]any{"size": m.Size(), "walkable": m.CountWalkable()})
	}
	s.gridMap = m
	s.matcher = dispatch.NewMatcher(m, outbox{s}, s.cfg.Dispatch,
		dispatch.WithClock(s.now), dispatch.WithLogger(logger.New("matcher")))

	couriers, err := s.store.LoadCouriers(ctx)
	switch {
	case errors.Is(err, corestore.ErrNotFound):
		couriers = s.seedFleet(s.cfg.Fleet.DefaultSize)
		if err := s.store.SaveCouriers(ctx, couriers); err != nil {
			return fmt.Errorf("save couriers: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load couriers: %w", err)
	}
	orders, err := s.store.LoadOrders(ctx)
	if err != nil && !errors.Is(err, corestore.ErrNotFound) {
		return fmt.Errorf("load orders: %w", err)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	byID := make(map[string]*model.Order, len(orders))
	for _, o := range orders {
		if o != nil {
			byID[o.ID] = o
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	held := make(map[string]string)
	for _, c := range couriers {
		if c == nil {
			continue
		}
		if !m.IsWalkableAt(c.Location) {
			s.log.Warnw("skip courier on blocked cell", map[string]any{"courier_id": c.ID, "location": c.Location.String()})
			continue
		}
		if !c.IsFree() {
			if o := byID[c.CurrentOrderID]; o == nil || !o.IsInFlight() || o.AssignedCourierID != c.ID {
				s.log.Warnw("free courier without a matching order", map[string]any{"courier_id": c.ID, "order_id": c.CurrentOrderID})
				_, _ = c.Release()
			}
		}
		if err := s.matcher.AddCourier(c); err != nil {
			s.log.Warnw("skip invalid courier", map[string]any{"courier_id": c.ID, "error": err.Error()})
			continue
		}
		if !c.IsFree() {
			held[c.CurrentOrderID] = c.ID
		}
	}

	requeued := 0
	for _, o := range byID {
		if o.IsInFlight() && held[o.ID] != o.AssignedCourierID {
			s.log.Warnw("order lost its courier, back to pending", map[string]any{"order_id": o.ID, "courier_id": o.AssignedCourierID})
			_ = o.Unassign(s.now())
		}
	}
	for _, o := range orders {
		if o == nil {
			continue
		}
		s.orders[o.ID] = o
		switch o.Status {
		case model.OrderPending:
			if err := s.matcher.Enqueue(o); err != nil {
				s.log.Warnw("requeue failed", map[string]any{"order_id": o.ID, "error": err.Error()})
				continue
			}
			requeued++
		case model.OrderDelivered:
			s.throughput.Add(o.UpdatedAt)
		}
	}
	s.log.Infow("state restored", map[string]any{
		"couriers": len(couriers), "orders": len(orders), "requeued": requeued,
	})
	return nil
}

// seedFleet places n couriers on random walkable cells.
func (s *Service) seedFleet(n int) []*model.Courier {
	cells := s.gridMap.WalkableCells()
	if len(cells) == 0 {
		return nil
	}
	out := make([]*model.Courier, 0, n)
	for i := 0; i < n; i++ {
		loc := cells[s.rnd.Intn(len(cells))]
		c, err := model.NewCourier(fmt.Sprintf("courier-%d", i+1), loc, defaultFleet[i%len(defaultFleet)])
		if err != nil {
			s.log.Errorf("seed courier %d: %v", i+1, err)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Run starts the watchdog and the enabled observability outputs and blocks
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	var relay *mqtt.Relay
	if s.cfg.MQTT.Enabled {
		r, err := mqtt.NewRelay(s.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt relay: %w", err)
		}
		relay = r
		defer relay.Disconnect()
		relayDone := relay.Start(ctx, s.bus)
		defer func() { <-relayDone }()
	}

	sink, err := metrics.NewSink(s.cfg.Metrics, s.registerer)
	if err != nil {
		return fmt.Errorf("metrics sink: %w", err)
	}
	collectorDone := metrics.StartEventCollector(ctx, s.bus, sink)
	defer func() { <-collectorDone }()
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServerFor(ctx, s.cfg.Metrics.PrometheusAddr, s.gatherer()); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.watchdog.Start(ctx)
	defer s.watchdog.Stop()
	s.log.Infow("service running", map[string]any{
		"grid_size": s.gridMap.Size(), "prometheus": s.cfg.Metrics.PrometheusEnabled, "mqtt": relay != nil,
	})
	<-ctx.Done()
	return nil
}

// gatherer returns the registry sinks were registered on when it can be
// scraped, and the default gatherer otherwise.
func (s *Service) gatherer() prometheus.Gatherer {
	if g, ok := s.registerer.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}

// Close flushes pending saves and releases the store and the bus.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.watchdog.Stop()
		close(s.quit)
		<-s.saverDone
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.drain()
		err = errors.Join(s.Flush(ctx), s.store.Close())
		s.bus.Close()
	})
	return err
}

// Bus exposes the event bus for real-time consumers. Events are published
// after the Service lock is released, so handlers may call back into the
// Service.
func (s *Service) Bus() *eventbus.Bus { return s.bus }

// Map returns the city grid.
func (s *Service) Map() *grid.Map { return s.gridMap }

// Watchdog returns the SLA watchdog.
func (s *Service) Watchdog() *sla.Watchdog { return s.watchdog }

// CreateOrder registers a pending order at (x, y) and tries to assign it
// right away. An empty id gets a generated one. Unmatched orders are queued.
func (s *Service) CreateOrder(id string, x, y int, weight float64) (*model.Order, dispatch.Result, error) {
	loc := model.Location{X: x, Y: y}
	if !s.gridMap.IsWalkableAt(loc) {
		return nil, dispatch.Result{}, fmt.Errorf("%w: %s", ErrNotWalkable, loc)
	}
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; ok {
		return nil, dispatch.Result{}, fmt.Errorf("%w: %s", ErrDuplicateOrder, id)
	}
	o, err := model.NewOrder(id, loc, weight, s.now())
	if err != nil {
		return nil, dispatch.Result{}, err
	}
	s.orders[id] = o
	s.publish(events.OrderCreated, events.OrderEvent{Order: o.Clone()})
	res, err := s.matcher.Assign(o, true)
	s.markDirty()
	return o.Clone(), res, err
}

// AssignOrder binds a pending order to courierID.
func (s *Service) AssignOrder(orderID, courierID string) (dispatch.Result, error) {
	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return dispatch.Result{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	res, err := s.matcher.ManualAssign(o, courierID)
	if err != nil {
		return res, err
	}
	s.markDirty()
	return res, nil
}

// UpdateOrderStatus moves an order along its lifecycle. Delivering frees
// the courier and offers it the queue head; cancelling releases the courier
// and drops the order from the queue.
func (s *Service) UpdateOrderStatus(orderID string, status model.OrderStatus) (*model.Order, error) {
	if _, ok := model.ParseOrderStatus(string(status)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	switch status {
	case model.OrderCancelled:
		return s.CancelOrder(orderID)
	case model.OrderPending, model.OrderAssigned:
		return nil, fmt.Errorf("%w: %s is set by dispatching", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	courierID := o.AssignedCourierID
	if err := o.Advance(status, s.now()); err != nil {
		return nil, err
	}
	s.markDirty()
	if status != model.OrderDelivered {
		return o.Clone(), nil
	}
	s.throughput.Add(o.UpdatedAt)
	s.publish(events.OrderCompleted, events.OrderEvent{Order: o.Clone(), CourierID: courierID})
	comp, err := s.matcher.CompleteOrder(courierID)
	if err != nil {
		s.log.Errorw("complete courier failed", map[string]any{"order_id": orderID, "courier_id": courierID, "error": err.Error()})
		return o.Clone(), nil
	}
	if comp.Drained != nil && comp.Drained.Assigned {
		s.log.Infow("queue head drained", map[string]any{"courier_id": courierID, "order_id": comp.Drained.OrderID})
	}
	return o.Clone(), nil
}

// CancelOrder cancels a pending or assigned order.
func (s *Service) CancelOrder(orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	return s.cancel(orderID)
}

func (s *Service) cancel(orderID string) (*model.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	courierID := o.AssignedCourierID
	if err := o.Advance(model.OrderCancelled, s.now()); err != nil {
		return nil, err
	}
	s.matcher.RemoveFromQueue(orderID)
	if courierID != "" {
		if _, err := s.matcher.ReleaseCourier(courierID); err != nil {
			s.log.Errorw("release courier failed", map[string]any{"order_id": orderID, "courier_id": courierID, "error": err.Error()})
		}
	}
	s.publish(events.OrderCancelled, events.OrderEvent{Order: o.Clone(), CourierID: courierID})
	s.markDirty()
	return o.Clone(), nil
}

// Order returns a copy of one order.
func (s *Service) Order(id string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

// Orders lists copies of the orders, oldest first, optionally filtered by status.
func (s *Service) Orders(statuses ...model.OrderStatus) []*model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ordersLocked(statuses...)
}

func (s *Service) ordersLocked(statuses ...model.OrderStatus) []*model.Order {
	want := make(map[model.OrderStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := make([]*model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeliveredOrders feeds the SLA watchdog.
func (s *Service) DeliveredOrders() []*model.Order {
	return s.Orders(model.OrderDelivered)
}

// CreateCourier adds a free courier. An empty id gets a generated one.
func (s *Service) CreateCourier(id string, x, y int, transport string) (*model.Courier, error) {
	t, err := model.TransportByName(transport)
	if err != nil {
		return nil, err
	}
	loc := model.Location{X: x, Y: y}
	if !s.gridMap.IsWalkableAt(loc) {
		return nil, fmt.Errorf("%w: %s", ErrNotWalkable, loc)
	}
	if id == "" {
		id = "courier-" + uuid.NewString()
	}
	c, err := model.NewCourier(id, loc, t)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	if err := s.matcher.AddCourier(c); err != nil {
		return nil, err
	}
	s.markDirty()
	return c.Clone(), nil
}

// CourierPatch lists the fields UpdateCourier may change. Nil fields are kept.
type CourierPatch struct {
	Location  *model.Location
	Transport *string
	Status    *model.CourierStatus
}

// UpdateCourier edits a courier. Setting a busy courier free cancels the
// order it holds; busy cannot be set directly.
func (s *Service) UpdateCourier(id string, p CourierPatch) (*model.Courier, error) {
	var upd dispatch.CourierUpdate
	if p.Location != nil {
		if !s.gridMap.IsWalkableAt(*p.Location) {
			return nil, fmt.Errorf("%w: %s", ErrNotWalkable, *p.Location)
		}
		upd.Location = p.Location
	}
	if p.Transport != nil {
		t, err := model.TransportByName(*p.Transport)
		if err != nil {
			return nil, err
		}
		upd.Transport = &t
	}

	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	cur, ok := s.matcher.Courier(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrCourierNotFound, id)
	}
	if p.Status != nil && *p.Status != cur.Status {
		switch *p.Status {
		case model.CourierFree:
			if _, err := s.cancel(cur.CurrentOrderID); err != nil {
				return nil, err
			}
		case model.CourierBusy:
			return nil, fmt.Errorf("%w: busy is set by assignment", ErrInvalidStatus)
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
		}
	}
	c, err := s.matcher.UpdateCourier(id, upd)
	if err != nil {
		return nil, err
	}
	s.markDirty()
	return c, nil
}

// ResetCourierCounter zeroes a courier's deliveries for the day and saves
// the roster.
func (s *Service) ResetCourierCounter(id string) (*model.Courier, error) {
	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	c, err := s.matcher.ResetCompletedToday(id)
	if err != nil {
		return nil, err
	}
	s.log.Infow("courier daily counter reset", map[string]any{"courier_id": id})
	s.markDirty()
	return c, nil
}

// DeleteCourier removes a free courier.
func (s *Service) DeleteCourier(id string) error {
	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	if err := s.matcher.RemoveCourier(id); err != nil {
		return err
	}
	s.markDirty()
	return nil
}

// Courier returns a copy of one courier.
func (s *Service) Courier(id string) (*model.Courier, error) {
	c, ok := s.matcher.Courier(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrCourierNotFound, id)
	}
	return c, nil
}

// Couriers lists copies of every courier sorted by id.
func (s *Service) Couriers() []*model.Courier { return s.matcher.Couriers() }

// ProcessQueue retries every queued order once.
func (s *Service) ProcessQueue() dispatch.ProcessResult {
	s.mu.Lock()
	defer s.drain()
	defer s.mu.Unlock()
	pr := s.matcher.ProcessQueue()
	if pr.Succeeded > 0 {
		s.markDirty()
	}
	return pr
}

// Queue returns the backlog in FIFO order.
func (s *Service) Queue() []queue.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matcher.Queue()
}
