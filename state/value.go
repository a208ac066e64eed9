package state

import (
	"sync"
	"sync/atomic"
)

// Value is a single-writer, multi-reader snapshot cell. Readers always see a
// complete value, either the previous or the new one. Watchers are told that
// the value changed; intermediate values may be skipped (last value wins).
type Value[T any] struct {
	cur      atomic.Pointer[T]
	watchers map[chan struct{}]struct{}
	mu       sync.Mutex
}

// NewValue creates a cell holding initial.
func NewValue[T any](initial T) *Value[T] {
	v := &Value[T]{}
	v.cur.Store(&initial)
	return v
}

// Load returns the current snapshot.
func (v *Value[T]) Load() T {
	if p := v.cur.Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Store replaces the snapshot and notifies watchers.
func (v *Value[T]) Store(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur.Store(&x)
	v.notifyLocked()
}

// Update replaces the snapshot with fn(current) atomically with respect to
// other writers and returns the stored value.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	next := fn(v.Load())
	v.cur.Store(&next)
	v.notifyLocked()
	return next
}

// Watch returns a channel that receives a signal after every change, with
// bursts coalesced into one pending signal, and a func that stops watching.
func (v *Value[T]) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	v.mu.Lock()
	if v.watchers == nil {
		v.watchers = make(map[chan struct{}]struct{})
	}
	v.watchers[ch] = struct{}{}
	v.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.watchers, ch)
			v.mu.Unlock()
		})
	}
}

func (v *Value[T]) notifyLocked() {
	for ch := range v.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
