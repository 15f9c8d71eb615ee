// Package store defines how the dispatch state is persisted between runs.
package store

import (
	"context"
	"errors"

	"github.com/kilianp07/gridcourier/core/grid"
	"github.com/kilianp07/gridcourier/core/model"
)

// ErrNotFound reports that nothing was saved yet under a key. Callers fall
// back to defaults on ErrNotFound and treat any other error as a failure.
var ErrNotFound = errors.New("not found")

// Store loads and saves the map, the orders and the courier roster.
type Store interface {
	LoadMap(ctx context.Context) (*grid.Map, error)
	SaveMap(ctx context.Context, m *grid.Map) error
	LoadOrders(ctx context.Context) ([]*model.Order, error)
	SaveOrders(ctx context.Context, orders []*model.Order) error
	LoadCouriers(ctx context.Context) ([]*model.Courier, error)
	SaveCouriers(ctx context.Context, couriers []*model.Courier) error
	Close() error
}
