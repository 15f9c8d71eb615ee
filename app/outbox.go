package app

import "github.com/kilianp07/gridcourier/internal/eventbus"

// outbox buffers events raised while s.mu is held. It is the matcher's
// publisher, so every Publish call happens under s.mu.
type outbox struct{ s *Service }

func (o outbox) Publish(e eventbus.Event) (eventbus.Event, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = o.s.now()
	}
	o.s.pending = append(o.s.pending, e)
	return e, nil
}

// publish queues an event. Callers hold s.mu.
func (s *Service) publish(typ string, data any) {
	_, _ = outbox{s}.Publish(eventbus.Event{Type: typ, Data: data})
}

// drain hands queued events to the bus after s.mu is released, so handlers
// may call back into the Service. One caller drains at a time, which keeps
// events in commit order; a nested or concurrent call leaves its events to
// the active drainer.
func (s *Service) drain() {
	for {
		if !s.pubMu.TryLock() {
			return
		}
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		for _, e := range batch {
			if _, err := s.bus.Publish(e); err != nil {
				s.log.Warnw("publish failed", map[string]any{"type": e.Type, "error": err.Error()})
			}
		}
		s.pubMu.Unlock()
		if len(batch) > 0 {
			continue
		}
		s.mu.Lock()
		more := len(s.pending) > 0
		s.mu.Unlock()
		if !more {
			return
		}
	}
}
