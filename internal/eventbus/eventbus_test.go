package eventbus

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	var got []Event
	unsub := bus.Subscribe("ORDER_QUEUED", func(e Event) error {
		got = append(got, e)
		return nil
	})
	_, err := bus.Publish(Event{Type: "ORDER_QUEUED", Data: "o1"})
	require.NoError(t, err)
	_, err = bus.Publish(Event{Type: "ORDER_CREATED"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "ORDER_QUEUED", got[0].Type)
	assert.Equal(t, "o1", got[0].Data)

	unsub()
	unsub()
	_, _ = bus.Publish(Event{Type: "ORDER_QUEUED"})
	assert.Len(t, got, 1)
}

func TestPublishRequiresType(t *testing.T) {
	bus := New()
	if _, err := bus.Publish(Event{}); !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
	assert.Equal(t, uint64(0), bus.Stats().Published)
}

func TestTimestampDefaulted(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bus := New(WithClock(func() time.Time { return ts }))
	e, err := bus.Publish(Event{Type: "X"})
	require.NoError(t, err)
	assert.Equal(t, ts, e.Timestamp)

	given := ts.Add(time.Hour)
	e, _ = bus.Publish(Event{Type: "X", Timestamp: given})
	assert.Equal(t, given, e.Timestamp)
}

func TestFailingHandlersAreIsolated(t *testing.T) {
	bus := New()
	calls := 0
	bus.Subscribe("X", func(Event) error { return fmt.Errorf("broken") })
	bus.Subscribe("X", func(Event) error { panic("boom") })
	bus.Subscribe("X", func(Event) error { calls++; return nil })

	_, err := bus.Publish(Event{Type: "X"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestHandlersMayPublish(t *testing.T) {
	bus := New()
	var seen []string
	bus.Subscribe("A", func(Event) error {
		_, err := bus.Publish(Event{Type: "B"})
		return err
	})
	bus.Subscribe(All, func(e Event) error { seen = append(seen, e.Type); return nil })
	_, err := bus.Publish(Event{Type: "A"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, seen)
}

func TestBoundedHistory(t *testing.T) {
	bus := New()
	for i := 0; i < 120; i++ {
		_, err := bus.Publish(Event{Type: "X", Data: i})
		require.NoError(t, err)
	}
	recent := bus.RecentEvents()
	require.Len(t, recent, DefaultHistory)
	assert.Equal(t, 20, recent[0].Data)
	assert.Equal(t, 119, recent[len(recent)-1].Data)

	st := bus.Stats()
	assert.Equal(t, uint64(120), st.Published)
	assert.Equal(t, uint64(120), st.ByType["X"])
	assert.Equal(t, DefaultHistory, st.Retained)
}

func TestPublishOrderPerType(t *testing.T) {
	bus := New(WithHistory(5))
	var got []int
	bus.Subscribe("X", func(e Event) error { got = append(got, e.Data.(int)); return nil })
	for i := 0; i < 10; i++ {
		_, _ = bus.Publish(Event{Type: "X", Data: i})
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.Len(t, bus.RecentEvents(), 5)
}

func TestStatsSubscribers(t *testing.T) {
	bus := New()
	u1 := bus.Subscribe("X", func(Event) error { return nil })
	bus.Subscribe("X", func(Event) error { return nil })
	bus.Subscribe("Y", func(Event) error { return nil })
	assert.Equal(t, map[string]int{"X": 2, "Y": 1}, bus.Stats().Subscribers)
	u1()
	assert.Equal(t, 1, bus.Stats().Subscribers["X"])
}

func TestStream(t *testing.T) {
	bus := New()
	ch, cancel := bus.Stream(4, "X")
	_, _ = bus.Publish(Event{Type: "X", Data: 1})
	_, _ = bus.Publish(Event{Type: "Y", Data: 2})
	ev := <-ch
	assert.Equal(t, 1, ev.Data)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	// publishing after cancel must not panic
	_, err := bus.Publish(Event{Type: "X"})
	assert.NoError(t, err)
}

func TestStreamDropsWhenFull(t *testing.T) {
	bus := New()
	ch, cancel := bus.Stream(1)
	defer cancel()
	_, _ = bus.Publish(Event{Type: "A"})
	_, _ = bus.Publish(Event{Type: "B"})
	assert.Equal(t, "A", (<-ch).Type)
	assert.Len(t, ch, 0)
}

func TestClose(t *testing.T) {
	bus := New()
	ch1, _ := bus.Stream(1)
	ch2, cancel2 := bus.Stream(1, "X")
	bus.Close()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	cancel2()
	_, err := bus.Publish(Event{Type: "X"})
	assert.ErrorIs(t, err, ErrClosed)

	ch3, _ := bus.Stream(1)
	if _, ok := <-ch3; ok {
		t.Fatalf("stream on closed bus must be closed")
	}
}
