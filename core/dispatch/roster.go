package dispatch

import (
	"fmt"
	"sort"

	"github.com/kilianp07/gridcourier/core/model"
)

// CourierUpdate lists the externally editable courier fields. Status only
// changes through assignment, completion and release.
type CourierUpdate struct {
	Location  *model.Location
	Transport *model.Transport
}

// AddCourier registers a courier. Its location must lie on the grid.
func (m *Matcher) AddCourier(c *model.Courier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := c.Validate(m.router.Map().Size()); err != nil {
		return err
	}
	if _, ok := m.couriers[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCourier, c.ID)
	}
	m.couriers[c.ID] = c.Clone()
	return nil
}

// UpdateCourier applies upd. Changing the transport of a busy courier is
// rejected.
func (m *Matcher) UpdateCourier(id string, upd CourierUpdate) (*model.Courier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.couriers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCourierNotFound, id)
	}
	if upd.Location != nil {
		if !upd.Location.Within(m.router.Map().Size()) {
			return nil, fmt.Errorf("courier %s: %w", id, model.ErrInvalidLocation)
		}
	}
	if upd.Transport != nil {
		if _, err := model.TransportByName(upd.Transport.Name); err != nil {
			return nil, err
		}
		if !c.IsFree() {
			return nil, fmt.Errorf("courier %s: %w", id, ErrCourierBusy)
		}
	}
	if upd.Location != nil {
		c.MoveTo(*upd.Location)
	}
	if upd.Transport != nil {
		c.Transport = *upd.Transport
	}
	return c.Clone(), nil
}

// ResetCompletedToday zeroes the delivery counter used by the tie-break.
func (m *Matcher) ResetCompletedToday(id string) (*model.Courier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.couriers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCourierNotFound, id)
	}
	c.ResetCompletedToday()
	return c.Clone(), nil
}

// RemoveCourier deletes a free courier.
func (m *Matcher) RemoveCourier(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.couriers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCourierNotFound, id)
	}
	if !c.IsFree() {
		return fmt.Errorf("courier %s holds order %s: %w", id, c.CurrentOrderID, ErrCourierBusy)
	}
	delete(m.couriers, id)
	return nil
}

// Courier returns a copy of the courier with id.
func (m *Matcher) Courier(id string) (*model.Courier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.couriers[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Couriers returns copies of the roster sorted by id.
func (m *Matcher) Couriers() []*model.Courier {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Courier, 0, len(m.couriers))
	for _, c := range m.couriers {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TransportStats counts couriers of one transport profile.
type TransportStats struct {
	Total int `json:"total"`
	Free  int `json:"free"`
	Busy  int `json:"busy"`
}

// RosterStats aggregates the fleet.
type RosterStats struct {
	Total          int                       `json:"total"`
	Free           int                       `json:"free"`
	Busy           int                       `json:"busy"`
	ByTransport    map[string]TransportStats `json:"byTransport"`
	CompletedToday int                       `json:"totalCompletedToday"`
}

// RosterStats returns fleet counts.
func (m *Matcher) RosterStats() RosterStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := RosterStats{ByTransport: make(map[string]TransportStats)}
	for _, c := range m.couriers {
		ts := st.ByTransport[c.Transport.Name]
		ts.Total++
		st.Total++
		if c.IsFree() {
			ts.Free++
			st.Free++
		} else {
			ts.Busy++
			st.Busy++
		}
		st.ByTransport[c.Transport.Name] = ts
		st.CompletedToday += c.CompletedToday
	}
	return st
}
