package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLocation is returned for coordinates outside the grid.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrInvalidWeight is returned for non-positive order weights.
	ErrInvalidWeight = errors.New("order weight must be positive")
	// ErrUnknownTransport is returned when a transport name is not registered.
	ErrUnknownTransport = errors.New("unknown transport")
	// ErrInvalidID is returned when an identifier is empty.
	ErrInvalidID = errors.New("id must not be empty")
	// ErrInvalidTransition is the base error for rejected status changes.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCourierBusy is returned when a busy courier receives a new order.
	ErrCourierBusy = errors.New("courier is busy")
	// ErrCourierNotBusy is returned when a free courier is asked to complete an order.
	ErrCourierNotBusy = errors.New("courier is not busy")
)

// TransitionError describes a rejected order status change.
type TransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
