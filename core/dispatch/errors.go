package dispatch

import (
	"errors"

	"github.com/kilianp07/gridcourier/core/model"
)

var (
	// ErrAlreadyAssigned is returned when an order is not pending.
	ErrAlreadyAssigned = errors.New("order is not in a matchable state")
	// ErrCourierNotFound is returned for unknown courier ids.
	ErrCourierNotFound = errors.New("courier not found")
	// ErrDuplicateCourier is returned when adding an existing courier id.
	ErrDuplicateCourier = errors.New("courier already exists")
	// ErrCourierUnsuitable is returned when a manual assignment exceeds capacity.
	ErrCourierUnsuitable = errors.New("courier cannot carry order")
	// ErrCourierBusy is returned when a busy courier is assigned, edited or removed.
	ErrCourierBusy = model.ErrCourierBusy
	// ErrCourierNotBusy is returned when completing on a free courier.
	ErrCourierNotBusy = model.ErrCourierNotBusy
)
