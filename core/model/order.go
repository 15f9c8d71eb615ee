package model

import (
	"fmt"
	"math"
	"time"
)

// OrderStatus is a step in the delivery lifecycle.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderAssigned  OrderStatus = "assigned"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderInTransit OrderStatus = "in_transit"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderAssigned, OrderCancelled},
	OrderAssigned:  {OrderPickedUp, OrderCancelled},
	OrderPickedUp:  {OrderInTransit},
	OrderInTransit: {OrderDelivered},
}

// ParseOrderStatus validates a status name.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderPending, OrderAssigned, OrderPickedUp, OrderInTransit, OrderDelivered, OrderCancelled:
		return st, true
	}
	return "", false
}

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{OrderPending, OrderAssigned, OrderPickedUp, OrderInTransit, OrderDelivered, OrderCancelled}
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusChange is one entry of an order's history.
type StatusChange struct {
	Status OrderStatus `json:"status"`
	At     time.Time   `json:"timestamp"`
}

// Order is a delivery request.
type Order struct {
	ID                string         `json:"id"`
	Origin            Location       `json:"location"`
	Weight            float64        `json:"weight"`
	Status            OrderStatus    `json:"status"`
	AssignedCourierID string         `json:"assignedCourierId,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	StatusHistory     []StatusChange `json:"statusHistory"`
}

// NewOrder creates a pending order.
func NewOrder(id string, origin Location, weight float64, now time.Time) (*Order, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWeight, weight)
	}
	return &Order{
		ID:            id,
		Origin:        origin,
		Weight:        weight,
		Status:        OrderPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		StatusHistory: []StatusChange{{Status: OrderPending, At: now}},
	}, nil
}

// IsTerminal reports whether the order reached delivered or cancelled.
func (o *Order) IsTerminal() bool {
	return o.Status == OrderDelivered || o.Status == OrderCancelled
}

// IsMatchable reports whether the order may be handed to a courier.
func (o *Order) IsMatchable() bool { return o.Status == OrderPending }

// IsInFlight reports whether a courier currently holds the order.
func (o *Order) IsInFlight() bool {
	return o.Status == OrderAssigned || o.Status == OrderPickedUp || o.Status == OrderInTransit
}

// Unassign returns an in-flight order to pending when its courier is gone.
// It bypasses the transition table and is only used when restoring state.
func (o *Order) Unassign(now time.Time) error {
	if !o.IsInFlight() {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: OrderPending}
	}
	o.Status = OrderPending
	o.AssignedCourierID = ""
	o.UpdatedAt = now
	o.StatusHistory = append(o.StatusHistory, StatusChange{Status: OrderPending, At: now})
	return nil
}

// AssignTo moves a pending order to assigned.
func (o *Order) AssignTo(courierID string, now time.Time) error {
	if courierID == "" {
		return ErrInvalidID
	}
	if err := o.transition(OrderAssigned, now); err != nil {
		return err
	}
	o.AssignedCourierID = courierID
	return nil
}

// Advance applies any transition except assignment, which needs a courier.
func (o *Order) Advance(to OrderStatus, now time.Time) error {
	if to == OrderAssigned {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	if err := o.transition(to, now); err != nil {
		return err
	}
	if to == OrderCancelled {
		o.AssignedCourierID = ""
	}
	return nil
}

func (o *Order) transition(to OrderStatus, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = now
	o.StatusHistory = append(o.StatusHistory, StatusChange{Status: to, At: now})
	return nil
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	cp := *o
	cp.StatusHistory = append([]StatusChange(nil), o.StatusHistory...)
	return &cp
}

// Duration is the elapsed time between creation and the last update.
func (o *Order) Duration() time.Duration { return o.UpdatedAt.Sub(o.CreatedAt) }
