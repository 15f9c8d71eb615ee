package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridcourier/config"
	"github.com/kilianp07/gridcourier/core/dispatch"
	"github.com/kilianp07/gridcourier/core/events"
	"github.com/kilianp07/gridcourier/core/grid"
	"github.com/kilianp07/gridcourier/core/model"
	"github.com/kilianp07/gridcourier/infra/logger"
	infrastore "github.com/kilianp07/gridcourier/infra/store"
	"github.com/kilianp07/gridcourier/internal/eventbus"
)

func openGrid(t *testing.T, size int, blocked ...model.Location) *grid.Map {
	t.Helper()
	raster := make([][]grid.Cell, size)
	for y := range raster {
		raster[y] = make([]grid.Cell, size)
	}
	for _, b := range blocked {
		raster[b.Y][b.X] = grid.Blocked
	}
	m, err := grid.New(raster)
	require.NoError(t, err)
	return m
}

func courier(t *testing.T, id string, x, y int, tr model.Transport) *model.Courier {
	t.Helper()
	c, err := model.NewCourier(id, model.Location{X: x, Y: y}, tr)
	require.NoError(t, err)
	return c
}

// newTestService starts a service over a 10x10 open grid with (5,5) blocked.
func newTestService(t *testing.T, dir string, couriers ...*model.Courier) *Service {
	t.Helper()
	st, err := infrastore.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	if _, err := st.LoadMap(ctx); err != nil {
		require.NoError(t, st.SaveMap(ctx, openGrid(t, 10, model.Location{X: 5, Y: 5})))
		require.NoError(t, st.SaveCouriers(ctx, couriers))
	}
	svc, err := New(config.Default(),
		WithStore(st),
		WithRand(rand.New(rand.NewSource(1))),
		WithLogger(logger.NopLogger{}),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	return svc
}

func TestNewGeneratesMapAndSeedsFleet(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Grid.Size = 20
	cfg.Grid.Seed = 7
	cfg.Store.Path = dir
	svc, err := New(cfg, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer svc.Close()

	couriers := svc.Couriers()
	require.Len(t, couriers, 5)
	byID := map[string]*model.Courier{}
	for _, c := range couriers {
		byID[c.ID] = c
		assert.True(t, svc.Map().IsWalkableAt(c.Location), "courier %s on blocked cell", c.ID)
		assert.Equal(t, model.CourierFree, c.Status)
	}
	assert.Equal(t, model.Walker.Name, byID["courier-1"].Transport.Name)
	assert.Equal(t, model.Bicycle.Name, byID["courier-2"].Transport.Name)
	assert.Equal(t, model.Bicycle.Name, byID["courier-3"].Transport.Name)
	assert.Equal(t, model.Scooter.Name, byID["courier-4"].Transport.Name)
	assert.Equal(t, model.Car.Name, byID["courier-5"].Transport.Name)

	st, err := infrastore.NewFileStore(dir)
	require.NoError(t, err)
	saved, err := st.LoadMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, svc.Map().Raster(), saved.Raster())
}

func TestCreateOrderAssignsNearest(t *testing.T) {
	svc := newTestService(t, t.TempDir(),
		courier(t, "near", 0, 0, model.Walker),
		courier(t, "far", 9, 9, model.Car),
	)
	defer svc.Close()

	o, res, err := svc.CreateOrder("o1", 1, 0, 2)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
	assert.Equal(t, "near", res.CourierID)
	assert.Equal(t, 1.0, res.Distance)
	assert.Equal(t, model.OrderAssigned, o.Status)
	assert.Equal(t, "near", o.AssignedCourierID)

	c, err := svc.Courier("near")
	require.NoError(t, err)
	assert.Equal(t, model.CourierBusy, c.Status)
	assert.Equal(t, "o1", c.CurrentOrderID)
}

func TestCreateOrderRejections(t *testing.T) {
	svc := newTestService(t, t.TempDir(), courier(t, "c1", 0, 0, model.Car))
	defer svc.Close()

	_, _, err := svc.CreateOrder("", 5, 5, 1)
	assert.ErrorIs(t, err, ErrNotWalkable)
	_, _, err = svc.CreateOrder("", 10, 0, 1)
	assert.ErrorIs(t, err, ErrNotWalkable)

	o, _, err := svc.CreateOrder("", 1, 1, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	_, _, err = svc.CreateOrder(o.ID, 2, 2, 1)
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	_, _, err = svc.CreateOrder("neg", 2, 2, -1)
	assert.ErrorIs(t, err, model.ErrInvalidWeight)
	assert.True(t, IsInvalid(err))
}

func TestOrderLifecycleAndStats(t *testing.T) {
	svc := newTestService(t, t.TempDir(), courier(t, "c1", 0, 0, model.Bicycle))
	defer svc.Close()

	_, _, err := svc.CreateOrder("o1", 3, 0, 4)
	require.NoError(t, err)
	for _, st := range []model.OrderStatus{model.OrderPickedUp, model.OrderInTransit, model.OrderDelivered} {
		_, err := svc.UpdateOrderStatus("o1", st)
		require.NoError(t, err, "advance to %s", st)
	}
	_, err = svc.UpdateOrderStatus("o1", model.OrderPickedUp)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	c, err := svc.Courier("c1")
	require.NoError(t, err)
	assert.Equal(t, model.CourierFree, c.Status)
	assert.Equal(t, 1, c.CompletedToday)

	stats := svc.Stats()
	assert.Equal(t, 1, stats.Orders[model.OrderDelivered])
	assert.Equal(t, 0, stats.Orders[model.OrderPending])
	assert.Equal(t, 1, stats.CompletedToday)
	assert.Greater(t, stats.OrdersPerMinute, 0.0)
	assert.Equal(t, 1, stats.Couriers.Free)

	delivered := svc.DeliveredOrders()
	require.Len(t, delivered, 1)
	assert.Len(t, delivered[0].StatusHistory, 5)
}

func TestUpdateOrderStatusRejectsDispatchStatuses(t *testing.T) {
	svc := newTestService(t, t.TempDir(), courier(t, "c1", 0, 0, model.Car))
	defer svc.Close()
	_, _, err := svc.CreateOrder("o1", 1, 0, 1)
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus("o1", model.OrderAssigned)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.UpdateOrderStatus("o1", "teleported")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.UpdateOrderStatus("missing", model.OrderPickedUp)
	assert.True(t, IsNotFound(err))
}

func TestDeliveryDrainsQueue(t *testing.T) {
	svc := newTestService(t, t.TempDir(), courier(t, "c1", 0, 0, model.Car))
	defer svc.Close()

	_, res, err := svc.CreateOrder("a", 1, 0, 1)
	require.NoError(t, err)
	require.True(t, res.Assigned)
	_, res, err = svc.CreateOrder("b", 2, 0, 1)
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, dispatch.ReasonAllBusy, res.Reason)
	require.Len(t, svc.Queue(), 1)

	for _, st := range []model.OrderStatus{model.OrderPickedUp, model.OrderInTransit, model.OrderDelivered} {
		_, err := svc.UpdateOrderStatus("a", st)
		require.NoError(t, err)
	}
	assert.Empty(t, svc.Queue())
	b, err := svc.Order("b")
	require.NoError(t, err)
	assert.Equal(t, model.OrderAssigned, b.Status)
	assert.Equal(t, "c1", b.AssignedCourierID)
}

func TestCancelReleasesWithoutCounting(t *testing.T) {
	svc := newTestService(t, t.TempDir(), courier(t, "c1", 0, 0, model.Car))
	defer svc.Close()

	_, _, err := svc.CreateOrder("a", 1, 0, 1)
	require.NoError(t, err)
	_, _, err = svc.CreateOrder("b", 2, 0, 1)
	require.NoError(t, err)

	o, err := svc.CancelOrder("a")
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, o.Status)
	assert.Empty(t, o.AssignedCourierID)

	c, err := svc.Courier("c1")
	require.NoError(t, err)
	assert.Equal(t, model.CourierFree, c.Status)
	assert.Equal(t, 0, c.CompletedToday)
	// release does not drain the backlog
	assert.Len(t, svc.Queue(), 1)

	_, err = svc.UpdateOrderStatus("b", model.OrderCancelled)
	require.NoError(t, err)
	assert.Empty(t, svc.Queue())

	_, err = svc.CancelOrder("b")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestManualAssignAndProcessQueue(t *testing.T) {
	svc := newTestService(t, t.TempDir(), courier(t, "walker", 0, 0, model.Walker))
	defer svc.Close()

	_, res, err := svc.CreateOrder("heavy", 1, 0, 20)
	require.NoError(t, err)
	assert.Equal(t, dispatch.ReasonWeightTooHeavy, res.Reason)

	_, err = svc.AssignOrder("heavy", "walker")
	assert.ErrorIs(t, err, dispatch.ErrCourierUnsuitable)

	_, err = svc.CreateCourier("car", 9, 0, "car")
	require.NoError(t, err)
	pr := svc.ProcessQueue()
	assert.Equal(t, 1, pr.Succeeded)
	assert.Equal(t, 0, pr.Remaining)

	_, _, err = svc.CreateOrder("light", 0, 1, 1)
	require.NoError(t, err)
	_, err = svc.AssignOrder("light", "car")
	assert.ErrorIs(t, err, dispatch.ErrAlreadyAssigned)
}

func TestUpdateCourier(t *testing.T) {
	svc := newTestService(t, t.TempDir(), courier(t, "c1", 0, 0, model.Bicycle))
	defer svc.Close()

	loc := model.Location{X: 3, Y: 3}
	c, err := svc.UpdateCourier("c1", CourierPatch{Location: &loc})
	require.NoError(t, err)
	assert.Equal(t, loc, c.Location)

	blocked := model.Location{X: 5, Y: 5}
	_, err = svc.UpdateCourier("c1", CourierPatch{Location: &blocked})
	assert.ErrorIs(t, err, ErrNotWalkable)

	busy := model.CourierBusy
	_, err = svc.UpdateCourier("c1", CourierPatch{Status: &busy})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, _, err = svc.CreateOrder("o1", 3, 4, 1)
	require.NoError(t, err)
	car := "car"
	_, err = svc.UpdateCourier("c1", CourierPatch{Transport: &car})
	assert.ErrorIs(t, err, dispatch.ErrCourierBusy)
	assert.ErrorIs(t, svc.DeleteCourier("c1"), dispatch.ErrCourierBusy)

	free := model.CourierFree
	c, err = svc.UpdateCourier("c1", CourierPatch{Status: &free, Transport: &car})
	require.NoError(t, err)
	assert.Equal(t, model.CourierFree, c.Status)
	assert.Equal(t, model.Car.Name, c.Transport.Name)
	o, err := svc.Order("o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, o.Status)

	require.NoError(t, svc.DeleteCourier("c1"))
	_, err = svc.Courier("c1")
	assert.True(t, IsNotFound(err))
}

func TestRestartRequeuesPendingOrders(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, dir, courier(t, "c1", 0, 0, model.Car))
	_, _, err := svc.CreateOrder("a", 1, 0, 1)
	require.NoError(t, err)
	_, _, err = svc.CreateOrder("b", 2, 0, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	restarted := newTestService(t, dir)
	defer restarted.Close()
	q := restarted.Queue()
	require.Len(t, q, 1)
	assert.Equal(t, "b", q[0].Order.ID)
	c, err := restarted.Courier("c1")
	require.NoError(t, err)
	assert.Equal(t, model.CourierBusy, c.Status)
	assert.Len(t, restarted.Orders(), 2)
	assert.Len(t, restarted.Orders(model.OrderPending), 1)
}

func TestSnapshot(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	defer svc.Close()
	_, _, err := svc.CreateOrder("a", 1, 0, 1)
	require.NoError(t, err)
	_, _, err = svc.CreateOrder("b", 2, 0, 1)
	require.NoError(t, err)

	snap := svc.Snapshot()
	assert.Equal(t, 10, snap.MapSize)
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, 1, snap.Queue[0].Position)
	assert.Equal(t, "a", snap.Queue[0].Order.ID)
	assert.Equal(t, 2, snap.Stats.Queue.Size)
	assert.Empty(t, snap.Couriers)
	assert.Equal(t, 2, snap.Stats.Orders[model.OrderPending])
}

func TestCreateOrderRejectsNonFiniteWeight(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, dir, courier(t, "c1", 0, 0, model.Car))
	defer svc.Close()

	for _, w := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, _, err := svc.CreateOrder("", 1, 1, w)
		assert.ErrorIs(t, err, model.ErrInvalidWeight, "weight %v", w)
		assert.True(t, IsInvalid(err))
	}
	assert.Empty(t, svc.Orders())
	assert.Empty(t, svc.Queue())

	_, res, err := svc.CreateOrder("ok", 1, 1, 2)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
	require.NoError(t, svc.Flush(context.Background()))

	st, err := infrastore.NewFileStore(dir)
	require.NoError(t, err)
	saved, err := st.LoadOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "ok", saved[0].ID)
}

func TestResetCourierCounter(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, dir, courier(t, "c1", 0, 0, model.Car))
	_, _, err := svc.CreateOrder("o1", 1, 0, 1)
	require.NoError(t, err)
	for _, st := range []model.OrderStatus{model.OrderPickedUp, model.OrderInTransit, model.OrderDelivered} {
		_, err := svc.UpdateOrderStatus("o1", st)
		require.NoError(t, err)
	}
	c, err := svc.Courier("c1")
	require.NoError(t, err)
	require.Equal(t, 1, c.CompletedToday)

	c, err = svc.ResetCourierCounter("c1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.CompletedToday)
	assert.Equal(t, 0, svc.Stats().CompletedToday)

	_, err = svc.ResetCourierCounter("ghost")
	assert.True(t, IsNotFound(err))
	require.NoError(t, svc.Close())

	restarted := newTestService(t, dir)
	defer restarted.Close()
	c, err = restarted.Courier("c1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.CompletedToday)
}

func TestRestoreReconcilesDroppedCouriers(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	st, err := infrastore.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, st.SaveMap(ctx, openGrid(t, 10, model.Location{X: 5, Y: 5})))

	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	orphan, err := model.NewOrder("orphan", model.Location{X: 2, Y: 2}, 1, t0)
	require.NoError(t, err)
	require.NoError(t, orphan.AssignTo("walled-in", t0))
	kept, err := model.NewOrder("kept", model.Location{X: 1, Y: 1}, 1, t0.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, kept.AssignTo("keeper", t0))
	require.NoError(t, kept.Advance(model.OrderPickedUp, t0))

	walledIn := courier(t, "walled-in", 5, 5, model.Car)
	require.NoError(t, walledIn.AssignOrder("orphan"))
	stale := courier(t, "stale", 0, 0, model.Car)
	require.NoError(t, stale.AssignOrder("missing"))
	keeper := courier(t, "keeper", 1, 1, model.Car)
	require.NoError(t, keeper.AssignOrder("kept"))
	require.NoError(t, st.SaveCouriers(ctx, []*model.Courier{walledIn, stale, keeper}))
	require.NoError(t, st.SaveOrders(ctx, []*model.Order{orphan, kept}))

	svc := newTestService(t, dir)
	defer svc.Close()

	_, err = svc.Courier("walled-in")
	assert.True(t, IsNotFound(err))
	o, err := svc.Order("orphan")
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Empty(t, o.AssignedCourierID)
	q := svc.Queue()
	require.Len(t, q, 1)
	assert.Equal(t, "orphan", q[0].Order.ID)

	c, err := svc.Courier("stale")
	require.NoError(t, err)
	assert.Equal(t, model.CourierFree, c.Status)
	assert.Empty(t, c.CurrentOrderID)

	c, err = svc.Courier("keeper")
	require.NoError(t, err)
	assert.Equal(t, model.CourierBusy, c.Status)
	o, err = svc.Order("kept")
	require.NoError(t, err)
	assert.Equal(t, model.OrderPickedUp, o.Status)
	assert.Equal(t, "keeper", o.AssignedCourierID)
}

func TestNullMapIsRegenerated(t *testing.T) {
	dir := t.TempDir()
	st, err := infrastore.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, st.SaveMap(context.Background(), nil))

	cfg := config.Default()
	cfg.Grid.Size = 12
	cfg.Grid.Seed = 3
	svc, err := New(cfg, WithStore(st), WithLogger(logger.NopLogger{}), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer svc.Close()
	assert.Equal(t, 12, svc.Map().Size())
}

func TestHandlersMayCallBackIntoService(t *testing.T) {
	svc := newTestService(t, t.TempDir(), courier(t, "c1", 0, 0, model.Car))
	defer svc.Close()

	var seen []string
	svc.Bus().Subscribe(events.OrderCreated, func(e eventbus.Event) error {
		snap := svc.Snapshot()
		seen = append(seen, fmt.Sprintf("created:%d", len(snap.Orders)))
		if _, _, err := svc.CreateOrder("follow-up", 2, 2, 1); err != nil && !errors.Is(err, ErrDuplicateOrder) {
			return err
		}
		return nil
	})
	svc.Bus().Subscribe(events.OrderAssigned, func(e eventbus.Event) error {
		seen = append(seen, "assigned")
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, err := svc.CreateOrder("first", 1, 0, 1)
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("handler calling back into the service deadlocked")
	}

	assert.Equal(t, []string{"created:1", "assigned", "created:2"}, seen)
	_, err := svc.Order("follow-up")
	require.NoError(t, err)
	assert.Len(t, svc.Queue(), 1)
}
