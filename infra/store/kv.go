// Package store implements core/store on top of JSON files or SQLite.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/gridcourier/core/grid"
	"github.com/kilianp07/gridcourier/core/model"
	corestore "github.com/kilianp07/gridcourier/core/store"
)

const (
	keyMap      = "map"
	keyOrders   = "orders"
	keyCouriers = "couriers"
)

// backend stores opaque JSON documents by key. get returns
// corestore.ErrNotFound for absent keys.
type backend interface {
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte) error
	Close() error
}

// kvStore implements corestore.Store over a backend.
type kvStore struct {
	backend
}

func load[T any](ctx context.Context, b backend, key string) (T, error) {
	var v T
	raw, err := b.get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

func save(ctx context.Context, b backend, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.put(ctx, key, raw)
}

// LoadMap treats a stored null document as absent.
func (s kvStore) LoadMap(ctx context.Context) (*grid.Map, error) {
	m, err := load[*grid.Map](ctx, s.backend, keyMap)
	if err == nil && m == nil {
		return nil, fmt.Errorf("%w: %s is null", corestore.ErrNotFound, keyMap)
	}
	return m, err
}

func (s kvStore) SaveMap(ctx context.Context, m *grid.Map) error {
	return save(ctx, s.backend, keyMap, m)
}

func (s kvStore) LoadOrders(ctx context.Context) ([]*model.Order, error) {
	return load[[]*model.Order](ctx, s.backend, keyOrders)
}

func (s kvStore) SaveOrders(ctx context.Context, orders []*model.Order) error {
	return save(ctx, s.backend, keyOrders, orders)
}

func (s kvStore) LoadCouriers(ctx context.Context) ([]*model.Courier, error) {
	return load[[]*model.Courier](ctx, s.backend, keyCouriers)
}

func (s kvStore) SaveCouriers(ctx context.Context, couriers []*model.Courier) error {
	return save(ctx, s.backend, keyCouriers, couriers)
}

// New opens the store selected by backend ("json" or "sqlite"). For json,
// path is a directory; for sqlite, a database file.
func New(backendName, path string) (corestore.Store, error) {
	switch backendName {
	case "json", "":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backendName)
	}
}
