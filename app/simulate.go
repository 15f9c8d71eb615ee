package app

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/gridcourier/core/model"
)

// simTransports is cycled over generated couriers.
var simTransports = []model.Transport{model.Walker, model.Bicycle, model.Scooter, model.Car}

// SimulationRequest sizes a simulation run.
type SimulationRequest struct {
	Orders   int `json:"ordersCount"`
	Couriers int `json:"couriersCount"`
}

// SimulationStats reports one run.
type SimulationStats struct {
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
	GeneratedCouriers int       `json:"generatedCouriers"`
	GeneratedOrders   int       `json:"generatedOrders"`
	Assigned          int       `json:"assigned"`
	Queued            int       `json:"queued"`
	Before            Stats     `json:"before"`
	After             Stats     `json:"after"`
}

// Simulate adds req.Couriers couriers and then req.Orders orders on random
// walkable cells through the regular request operations. Weights are drawn
// from 1.0 to 10.0 kg in 0.1 steps.
func (s *Service) Simulate(req SimulationRequest) (SimulationStats, error) {
	lim := s.cfg.Simulation
	if req.Orders < 0 || req.Couriers < 0 || req.Orders > lim.MaxOrders || req.Couriers > lim.MaxCouriers {
		return SimulationStats{}, fmt.Errorf("%w: %d orders (max %d), %d couriers (max %d)",
			ErrSimulationLimit, req.Orders, lim.MaxOrders, req.Couriers, lim.MaxCouriers)
	}
	if !s.simMu.TryLock() {
		return SimulationStats{}, ErrSimulationRunning
	}
	defer s.simMu.Unlock()

	cells := s.gridMap.WalkableCells()
	if len(cells) == 0 {
		return SimulationStats{}, fmt.Errorf("%w: map has no walkable cell", ErrNotWalkable)
	}
	st := SimulationStats{StartedAt: s.now(), Before: s.Stats()}
	pick := func() model.Location { return cells[s.rnd.Intn(len(cells))] }

	for i := 0; i < req.Couriers; i++ {
		loc := pick()
		id := "sim-courier-" + uuid.NewString()
		if _, err := s.CreateCourier(id, loc.X, loc.Y, simTransports[i%len(simTransports)].Name); err != nil {
			return st, fmt.Errorf("simulate courier %d: %w", i, err)
		}
		st.GeneratedCouriers++
	}
	for i := 0; i < req.Orders; i++ {
		loc := pick()
		weight := math.Round((s.rnd.Float64()*9+1)*10) / 10
		_, res, err := s.CreateOrder("sim-order-"+uuid.NewString(), loc.X, loc.Y, weight)
		if err != nil {
			return st, fmt.Errorf("simulate order %d: %w", i, err)
		}
		st.GeneratedOrders++
		switch {
		case res.Assigned:
			st.Assigned++
		case res.Queued:
			st.Queued++
		}
	}
	st.FinishedAt = s.now()
	st.After = s.Stats()
	s.log.Infow("simulation completed", map[string]any{
		"couriers": st.GeneratedCouriers, "orders": st.GeneratedOrders,
		"assigned": st.Assigned, "queued": st.Queued,
		"duration_ms": st.FinishedAt.Sub(st.StartedAt).Milliseconds(),
	})
	return st, nil
}
