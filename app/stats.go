package app

import (
	"github.com/kilianp07/gridcourier/core/dispatch"
	"github.com/kilianp07/gridcourier/core/model"
	"github.com/kilianp07/gridcourier/core/queue"
	"github.com/kilianp07/gridcourier/internal/eventbus"
)

// QueueStats describes the backlog with waits in milliseconds.
type QueueStats struct {
	Size      int   `json:"size"`
	AvgWaitMS int64 `json:"avgWaitMs"`
	MaxWaitMS int64 `json:"maxWaitMs"`
}

// Stats aggregates the engine state.
type Stats struct {
	Orders          map[model.OrderStatus]int `json:"orders"`
	TotalOrders     int                       `json:"totalOrders"`
	Couriers        dispatch.RosterStats      `json:"couriers"`
	Queue           QueueStats                `json:"queue"`
	CompletedToday  int                       `json:"completedToday"`
	OrdersPerMinute float64                   `json:"ordersPerMinute"`
	SLAViolations   int64                     `json:"slaViolations"`
	Events          eventbus.Stats            `json:"events"`
}

// Stats returns a consistent view of orders, couriers and the backlog.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Service) statsLocked() Stats {
	st := Stats{Orders: make(map[model.OrderStatus]int, len(model.OrderStatuses()))}
	for _, status := range model.OrderStatuses() {
		st.Orders[status] = 0
	}
	for _, o := range s.orders {
		st.Orders[o.Status]++
	}
	st.TotalOrders = len(s.orders)
	st.Couriers = s.matcher.RosterStats()
	st.Queue = queueStats(s.matcher.QueueStats())
	st.CompletedToday = st.Couriers.CompletedToday
	st.OrdersPerMinute = s.throughput.PerMinute()
	st.SLAViolations = s.watchdog.Violations()
	st.Events = s.bus.Stats()
	return st
}

func queueStats(qs queue.Stats) QueueStats {
	return QueueStats{
		Size:      qs.Size,
		AvgWaitMS: qs.AvgWait.Milliseconds(),
		MaxWaitMS: qs.MaxWait.Milliseconds(),
	}
}

// QueuedOrder is a backlog entry as shown to clients.
type QueuedOrder struct {
	Order      *model.Order `json:"order"`
	Position   int          `json:"position"`
	WaitTimeMS int64        `json:"waitTimeMs"`
}

// Snapshot is the initial state handed to real-time clients.
type Snapshot struct {
	MapSize  int              `json:"mapSize"`
	Orders   []*model.Order   `json:"orders"`
	Couriers []*model.Courier `json:"couriers"`
	Queue    []QueuedOrder    `json:"queue"`
	Stats    Stats            `json:"stats"`
}

// Snapshot captures orders, couriers, the backlog and stats at one instant.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entries := s.matcher.Queue()
	q := make([]QueuedOrder, len(entries))
	for i, e := range entries {
		q[i] = QueuedOrder{Order: e.Order, Position: i + 1, WaitTimeMS: e.Wait(now).Milliseconds()}
	}
	return Snapshot{
		MapSize:  s.gridMap.Size(),
		Orders:   s.ordersLocked(),
		Couriers: s.matcher.Couriers(),
		Queue:    q,
		Stats:    s.statsLocked(),
	}
}
