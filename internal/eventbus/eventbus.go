package eventbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/gridcourier/infra/logger"
)

// DefaultHistory is the number of events retained for introspection.
const DefaultHistory = 100

// All subscribes a handler to every event type.
const All = "*"

var (
	// ErrMissingType is returned when publishing an event without a type.
	ErrMissingType = errors.New("event type is required")
	// ErrClosed is returned when publishing on a closed bus.
	ErrClosed = errors.New("event bus closed")
)

// Event is a published notification.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler reacts to an event. A returned error is logged by the bus.
type Handler func(Event) error

// Stats describes bus activity.
type Stats struct {
	Published   uint64            `json:"published"`
	ByType      map[string]uint64 `json:"byType"`
	Retained    int               `json:"retained"`
	Subscribers map[string]int    `json:"subscribers"`
}

// EventBus is the publish/subscribe contract used by the dispatch engine.
type EventBus interface {
	Publish(Event) (Event, error)
	Subscribe(eventType string, h Handler) (unsubscribe func())
	RecentEvents() []Event
	Stats() Stats
}

type subscription struct {
	id uint64
	h  Handler
}

// Bus delivers events synchronously to handlers and keeps a bounded history.
type Bus struct {
	mu        sync.Mutex
	subs      map[string][]subscription
	nextID    uint64
	history   []Event
	head      int
	published uint64
	byType    map[string]uint64
	closed    bool
	streams   map[*stream]struct{}

	capacity int
	now      func() time.Time
	log      logger.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithHistory sets the number of retained events.
func WithHistory(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(now func() time.Time) Option { return func(b *Bus) { b.now = now } }

// WithLogger sets the logger receiving handler failures.
func WithLogger(l logger.Logger) Option { return func(b *Bus) { b.log = l } }

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:     make(map[string][]subscription),
		byType:   make(map[string]uint64),
		streams:  make(map[*stream]struct{}),
		capacity: DefaultHistory,
		now:      time.Now,
		log:      logger.NopLogger{},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish records e and invokes the handlers subscribed to its type, then
// the handlers subscribed to All. Handler failures never reach the caller.
func (b *Bus) Publish(e Event) (Event, error) {
	if e.Type == "" {
		return Event{}, ErrMissingType
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Event{}, ErrClosed
	}
	b.record(e)
	handlers := make([]subscription, 0, len(b.subs[e.Type])+len(b.subs[All]))
	handlers = append(handlers, b.subs[e.Type]...)
	handlers = append(handlers, b.subs[All]...)
	b.mu.Unlock()

	for _, s := range handlers {
		b.invoke(s, e)
	}
	return e, nil
}

func (b *Bus) record(e Event) {
	if len(b.history) < b.capacity {
		b.history = append(b.history, e)
	} else {
		b.history[b.head] = e
		b.head = (b.head + 1) % b.capacity
	}
	b.published++
	b.byType[e.Type]++
}

func (b *Bus) invoke(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("event handler panicked", map[string]any{
				"event_type": e.Type, "subscription": s.id, "panic": fmt.Sprint(r),
			})
		}
	}()
	if err := s.h(e); err != nil {
		b.log.Errorw("event handler failed", map[string]any{
			"event_type": e.Type, "subscription": s.id, "error": err.Error(),
		})
	}
}

// Subscribe registers h for eventType (or All) and returns a function that
// removes it. Calling the function more than once is harmless.
func (b *Bus) Subscribe(eventType string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *Bus) unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[eventType]) == 0 {
		delete(b.subs, eventType)
	}
}

// RecentEvents returns the retained events, oldest first.
func (b *Bus) RecentEvents() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, 0, len(b.history))
	out = append(out, b.history[b.head:]...)
	out = append(out, b.history[:b.head]...)
	return out
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := Stats{
		Published:   b.published,
		ByType:      make(map[string]uint64, len(b.byType)),
		Retained:    len(b.history),
		Subscribers: make(map[string]int, len(b.subs)),
	}
	for k, v := range b.byType {
		st.ByType[k] = v
	}
	for k, v := range b.subs {
		st.Subscribers[k] = len(v)
	}
	return st
}

// Close rejects further publishes and closes every stream channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	streams := b.streams
	b.streams = nil
	b.mu.Unlock()
	for s := range streams {
		s.close()
	}
}
