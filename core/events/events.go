package events

import (
	"time"

	"github.com/kilianp07/gridcourier/core/model"
)

const (
	OrderCreated         = "ORDER_CREATED"
	OrderAssigned        = "ORDER_ASSIGNED"
	OrderCompleted       = "ORDER_COMPLETED"
	OrderCancelled       = "ORDER_CANCELLED"
	OrderQueued          = "ORDER_QUEUED"
	QueueUpdated         = "QUEUE_UPDATED"
	CourierStatusChanged = "COURIER_STATUS_CHANGED"
	SLAViolation         = "SLA_VIOLATION"
)

// Types lists every event type forwarded to real-time clients.
func Types() []string {
	return []string{
		OrderCreated, OrderAssigned, OrderCompleted, OrderCancelled,
		OrderQueued, QueueUpdated, CourierStatusChanged, SLAViolation,
	}
}

// OrderEvent carries an order snapshot for created, completed and cancelled events.
type OrderEvent struct {
	Order     *model.Order `json:"order"`
	CourierID string       `json:"courierId,omitempty"`
}

// AssignmentEvent is published when an order is bound to a courier.
type AssignmentEvent struct {
	Order     *model.Order     `json:"order"`
	CourierID string           `json:"courierId"`
	Distance  float64          `json:"distance"`
	Transport string           `json:"transportType"`
	Path      []model.Location `json:"path,omitempty"`
	Manual    bool             `json:"manual,omitempty"`
}

// QueuedEvent is published when an order enters the backlog.
type QueuedEvent struct {
	Order     *model.Order `json:"order"`
	Reason    string       `json:"reason"`
	QueueSize int          `json:"queueSize"`
}

// Queue actions reported by QueueEvent.
const (
	QueueAdded    = "added"
	QueueRemoved  = "removed"
	QueueRequeued = "requeued"
)

// QueueEvent is published whenever the backlog content changes.
type QueueEvent struct {
	Action  string `json:"action"`
	OrderID string `json:"orderId"`
	Size    int    `json:"size"`
}

// CourierEvent is published when a courier changes status.
type CourierEvent struct {
	Courier  *model.Courier      `json:"courier"`
	Previous model.CourierStatus `json:"previousStatus"`
}

// Violation kinds.
const (
	ViolationQueueWait    = "QUEUE_WAIT"
	ViolationDeliveryTime = "DELIVERY_TIME"
)

// ViolationEvent reports a breached SLA threshold.
type ViolationEvent struct {
	Kind      string        `json:"kind"`
	OrderID   string        `json:"orderId"`
	Duration  time.Duration `json:"duration"`
	Threshold time.Duration `json:"threshold"`
}
