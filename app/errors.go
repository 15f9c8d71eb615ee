package app

import (
	"errors"

	"github.com/kilianp07/gridcourier/core/dispatch"
	"github.com/kilianp07/gridcourier/core/model"
)

var (
	// ErrOrderNotFound is returned for unknown order ids.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrder is returned when creating an order with a used id.
	ErrDuplicateOrder = errors.New("order already exists")
	// ErrNotWalkable is returned when a location is off the grid or blocked.
	ErrNotWalkable = errors.New("location is not walkable")
	// ErrInvalidStatus is returned for unknown or unsupported status values.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrSimulationLimit is returned when a run asks for more than the
	// configured orders or couriers.
	ErrSimulationLimit = errors.New("simulation limits exceeded")
	// ErrSimulationRunning is returned when a run is already in progress.
	ErrSimulationRunning = errors.New("simulation already running")
)

// IsNotFound reports whether err refers to a missing order or courier.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, dispatch.ErrCourierNotFound)
}

// IsInvalid reports whether err stems from a rejected input or transition.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrNotWalkable) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrSimulationLimit) ||
		errors.Is(err, model.ErrInvalidLocation) ||
		errors.Is(err, model.ErrInvalidWeight) ||
		errors.Is(err, model.ErrUnknownTransport) ||
		errors.Is(err, model.ErrInvalidID) ||
		errors.Is(err, model.ErrInvalidTransition)
}
