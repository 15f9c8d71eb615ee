package model

import "fmt"

// CourierStatus is the availability of a courier.
type CourierStatus string

const (
	CourierFree CourierStatus = "free"
	CourierBusy CourierStatus = "busy"
)

// Courier is a member of the delivery fleet.
type Courier struct {
	ID             string        `json:"id"`
	Location       Location      `json:"location"`
	Transport      Transport     `json:"transportType"`
	Status         CourierStatus `json:"status"`
	CurrentOrderID string        `json:"currentOrderId,omitempty"`
	CompletedToday int           `json:"completedOrdersToday"`
}

// NewCourier creates a free courier.
func NewCourier(id string, loc Location, transport Transport) (*Courier, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if _, err := TransportByName(transport.Name); err != nil {
		return nil, err
	}
	return &Courier{ID: id, Location: loc, Transport: transport, Status: CourierFree}, nil
}

// Validate checks the busy/current-order invariant and the location bounds.
func (c *Courier) Validate(size int) error {
	if c.ID == "" {
		return ErrInvalidID
	}
	if !c.Location.Within(size) {
		return fmt.Errorf("courier %s: %w", c.ID, ErrInvalidLocation)
	}
	busy := c.Status == CourierBusy
	if busy != (c.CurrentOrderID != "") {
		return fmt.Errorf("courier %s: status %s inconsistent with current order %q", c.ID, c.Status, c.CurrentOrderID)
	}
	if c.Status != CourierFree && c.Status != CourierBusy {
		return fmt.Errorf("courier %s: unknown status %q", c.ID, c.Status)
	}
	return nil
}

// IsFree reports whether the courier can take an order.
func (c *Courier) IsFree() bool { return c.Status == CourierFree }

// CanCarry reports whether the courier's transport supports weight.
func (c *Courier) CanCarry(weight float64) bool { return c.Transport.CanCarry(weight) }

// AssignOrder marks the courier busy with orderID.
func (c *Courier) AssignOrder(orderID string) error {
	if orderID == "" {
		return ErrInvalidID
	}
	if c.Status == CourierBusy {
		return fmt.Errorf("courier %s: %w", c.ID, ErrCourierBusy)
	}
	c.Status = CourierBusy
	c.CurrentOrderID = orderID
	return nil
}

// CompleteOrder frees the courier and counts the delivery.
func (c *Courier) CompleteOrder() (string, error) {
	id, err := c.Release()
	if err != nil {
		return "", err
	}
	c.CompletedToday++
	return id, nil
}

// Release frees the courier without counting a delivery.
func (c *Courier) Release() (string, error) {
	if c.Status != CourierBusy {
		return "", fmt.Errorf("courier %s: %w", c.ID, ErrCourierNotBusy)
	}
	id := c.CurrentOrderID
	c.CurrentOrderID = ""
	c.Status = CourierFree
	return id, nil
}

// ResetCompletedToday zeroes the daily delivery counter.
func (c *Courier) ResetCompletedToday() { c.CompletedToday = 0 }

// MoveTo updates the courier position.
func (c *Courier) MoveTo(loc Location) { c.Location = loc }

// Clone returns a copy safe to hand to callers.
func (c *Courier) Clone() *Courier {
	cp := *c
	return &cp
}
