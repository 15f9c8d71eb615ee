package metrics

import (
	"sync"
	"time"
)

// Throughput counts events inside a sliding time window.
type Throughput struct {
	mu     sync.Mutex
	span   time.Duration
	now    func() time.Time
	stamps []time.Time
}

// NewThroughput creates a window of the given span. A nil clock uses time.Now.
func NewThroughput(span time.Duration, now func() time.Time) *Throughput {
	if span <= 0 {
		span = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Throughput{span: span, now: now}
}

// Add records one event at t.
func (w *Throughput) Add(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamps = append(w.stamps, t)
	w.evict(w.now())
}

// Count returns the number of events in the window ending now.
func (w *Throughput) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return len(w.stamps)
}

// PerMinute scales Count to a one-minute rate.
func (w *Throughput) PerMinute() float64 {
	return float64(w.Count()) * float64(time.Minute) / float64(w.span)
}

func (w *Throughput) evict(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
