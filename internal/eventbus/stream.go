package eventbus

import "sync"

// stream adapts handler delivery to a buffered channel. Sends never block:
// when the buffer is full the event is dropped for that stream.
type stream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *stream) send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- e:
	default:
	}
	return nil
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Stream delivers the given event types (every type when none are given)
// on a buffered channel for asynchronous consumers. The returned function
// unsubscribes and closes the channel.
func (b *Bus) Stream(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &stream{ch: make(chan Event, buffer)}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.close()
		return s.ch, func() {}
	}
	b.streams[s] = struct{}{}
	b.mu.Unlock()

	if len(types) == 0 {
		types = []string{All}
	}
	unsubs := make([]func(), len(types))
	for i, t := range types {
		unsubs[i] = b.Subscribe(t, s.send)
	}
	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			for _, u := range unsubs {
				u()
			}
			b.mu.Lock()
			if b.streams != nil {
				delete(b.streams, s)
			}
			b.mu.Unlock()
			s.close()
		})
	}
}
