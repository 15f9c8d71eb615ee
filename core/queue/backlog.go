// Package queue holds orders waiting for a courier.
package queue

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/gridcourier/core/model"
)

var (
	// ErrDuplicateEntry is returned when an order id is already queued.
	ErrDuplicateEntry = errors.New("order already queued")
	// ErrNotQueued is returned when an order id is absent.
	ErrNotQueued = errors.New("order not queued")
)

// Entry is a queued order and the time it first entered the backlog.
type Entry struct {
	Order      *model.Order `json:"order"`
	EnqueuedAt time.Time    `json:"enqueuedAt"`
}

// Wait returns how long the entry has been queued at now.
func (e Entry) Wait(now time.Time) time.Duration { return now.Sub(e.EnqueuedAt) }

// Stats summarises queue waiting times.
type Stats struct {
	Size    int           `json:"size"`
	AvgWait time.Duration `json:"avgWaitingTime"`
	MaxWait time.Duration `json:"maxWaitingTime"`
}

// Backlog is a FIFO of unmatched orders with unique ids.
// It is not safe for concurrent use; the dispatch matcher serializes access.
type Backlog struct {
	entries []Entry
	ids     map[string]struct{}
	now     func() time.Time
}

// New creates an empty Backlog. A nil clock defaults to time.Now.
func New(clock func() time.Time) *Backlog {
	if clock == nil {
		clock = time.Now
	}
	return &Backlog{ids: make(map[string]struct{}), now: clock}
}

// Enqueue appends order with the current time.
func (b *Backlog) Enqueue(order *model.Order) (Entry, error) {
	return b.push(Entry{Order: order, EnqueuedAt: b.now()}, false)
}

// Requeue appends an entry keeping its original enqueue time.
func (b *Backlog) Requeue(e Entry) error {
	_, err := b.push(e, false)
	return err
}

// PushFront restores an entry to the head keeping its original enqueue time.
func (b *Backlog) PushFront(e Entry) error {
	_, err := b.push(e, true)
	return err
}

func (b *Backlog) push(e Entry, front bool) (Entry, error) {
	if e.Order == nil {
		return Entry{}, fmt.Errorf("%w: nil order", model.ErrInvalidID)
	}
	if _, ok := b.ids[e.Order.ID]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Order.ID)
	}
	b.ids[e.Order.ID] = struct{}{}
	if front {
		b.entries = append([]Entry{e}, b.entries...)
	} else {
		b.entries = append(b.entries, e)
	}
	return e, nil
}

// DequeueFront removes and returns the oldest entry.
func (b *Backlog) DequeueFront() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	e := b.entries[0]
	b.entries[0] = Entry{}
	b.entries = b.entries[1:]
	delete(b.ids, e.Order.ID)
	return e, true
}

// PeekFront returns the oldest entry without removing it.
func (b *Backlog) PeekFront() (Entry, bool) {
	if len(b.entries) == 0 {
		return Entry{}, false
	}
	return b.entries[0], true
}

// RemoveByID removes the entry for orderID wherever it sits.
func (b *Backlog) RemoveByID(orderID string) (Entry, error) {
	if _, ok := b.ids[orderID]; !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotQueued, orderID)
	}
	for i, e := range b.entries {
		if e.Order.ID == orderID {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			delete(b.ids, orderID)
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotQueued, orderID)
}

// Contains reports whether orderID is queued.
func (b *Backlog) Contains(orderID string) bool {
	_, ok := b.ids[orderID]
	return ok
}

// Size returns the number of queued orders.
func (b *Backlog) Size() int { return len(b.entries) }

// IsEmpty reports whether nothing is queued.
func (b *Backlog) IsEmpty() bool { return len(b.entries) == 0 }

// Entries returns the queue in FIFO order. Orders are cloned.
func (b *Backlog) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	for i, e := range b.entries {
		out[i] = Entry{Order: e.Order.Clone(), EnqueuedAt: e.EnqueuedAt}
	}
	return out
}

// Stats computes average and maximum waiting time at the current clock.
func (b *Backlog) Stats() Stats {
	st := Stats{Size: len(b.entries)}
	if st.Size == 0 {
		return st
	}
	now := b.now()
	waits := make([]float64, len(b.entries))
	for i, e := range b.entries {
		waits[i] = float64(e.Wait(now))
	}
	st.AvgWait = time.Duration(stat.Mean(waits, nil))
	st.MaxWait = time.Duration(floats.Max(waits))
	return st
}
