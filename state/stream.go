package state

import "sync"

// Stream fans discrete events out to subscribers. Emit never blocks: a
// subscriber whose buffer is full misses the event. The zero value is ready
// to use.
type Stream[T any] struct {
	subs   map[chan T]struct{}
	mu     sync.RWMutex
	closed bool
}

// Subscribe registers a receiver with the given buffer size. The returned
// func unsubscribes and closes the channel.
func (s *Stream[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if s.subs == nil {
		s.subs = make(map[chan T]struct{})
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

// Emit delivers v to every subscriber with buffer space and reports how many
// received it.
func (s *Stream[T]) Emit(v T) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for ch := range s.subs {
		select {
		case ch <- v:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the current subscriber count.
func (s *Stream[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Close closes every subscriber channel; later subscriptions get a closed
// channel.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}
