package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridcourier/core/model"
)

func TestSimulateGeneratesThroughRequestLayer(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	defer svc.Close()

	st, err := svc.Simulate(SimulationRequest{Orders: 12, Couriers: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, st.GeneratedCouriers)
	assert.Equal(t, 12, st.GeneratedOrders)
	assert.Equal(t, 12, st.Assigned+st.Queued)
	assert.Equal(t, 0, st.Before.TotalOrders)
	assert.Equal(t, 12, st.After.TotalOrders)
	assert.False(t, st.FinishedAt.Before(st.StartedAt))

	couriers := svc.Couriers()
	require.Len(t, couriers, 4)
	transports := map[string]int{}
	for _, c := range couriers {
		assert.True(t, svc.Map().IsWalkableAt(c.Location), "courier %s on blocked cell", c.ID)
		transports[c.Transport.Name]++
	}
	assert.Equal(t, map[string]int{"walker": 1, "bicycle": 1, "scooter": 1, "car": 1}, transports)

	for _, o := range svc.Orders() {
		assert.True(t, svc.Map().IsWalkableAt(o.Origin), "order %s on blocked cell", o.ID)
		assert.GreaterOrEqual(t, o.Weight, 1.0)
		assert.LessOrEqual(t, o.Weight, 10.0)
	}
	assert.Len(t, svc.Queue(), st.Queued)
	assert.Len(t, svc.Orders(model.OrderAssigned), st.Assigned)
}

func TestSimulateLimits(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	defer svc.Close()
	svc.cfg.Simulation.MaxOrders = 5
	svc.cfg.Simulation.MaxCouriers = 2

	_, err := svc.Simulate(SimulationRequest{Orders: 6})
	assert.ErrorIs(t, err, ErrSimulationLimit)
	assert.True(t, IsInvalid(err))
	_, err = svc.Simulate(SimulationRequest{Couriers: 3})
	assert.ErrorIs(t, err, ErrSimulationLimit)
	_, err = svc.Simulate(SimulationRequest{Orders: -1})
	assert.ErrorIs(t, err, ErrSimulationLimit)
	assert.Empty(t, svc.Orders())
	assert.Empty(t, svc.Couriers())

	svc.simMu.Lock()
	_, err = svc.Simulate(SimulationRequest{Orders: 1})
	svc.simMu.Unlock()
	assert.ErrorIs(t, err, ErrSimulationRunning)
}
