// Package bridge turns a blocking engine callback into a question published
// to the UI and an answer delivered later from any goroutine.
//
// Each question gets a fresh one-shot Cell. Asking again replaces the
// current cell, so an answer meant for an earlier question can never
// satisfy a later one. Answers that arrive when nothing is pending are
// dropped, not queued.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/protocol"
)

// DefaultTimeout bounds how long the engine thread waits for an answer.
const DefaultTimeout = 30 * time.Second

// Cell is a one-shot answer slot.
type Cell struct {
	ch        chan protocol.Answer
	cancelled chan struct{}
	id        string
	done      atomic.Bool
	once      sync.Once
}

func newCell(id string) *Cell {
	return &Cell{
		id:        id,
		ch:        make(chan protocol.Answer, 1),
		cancelled: make(chan struct{}),
	}
}

func (c *Cell) ID() string { return c.id }

// Fulfil stores the answer. Only the first call succeeds.
func (c *Cell) Fulfil(a protocol.Answer) bool {
	if !c.done.CompareAndSwap(false, true) {
		return false
	}
	c.ch <- a
	return true
}

func (c *Cell) cancel() {
	c.once.Do(func() { close(c.cancelled) })
}

// Bridge holds at most one pending question. It is meant for a single asking
// goroutine (the engine thread) and any number of answering goroutines.
type Bridge struct {
	current *Cell
	mu      sync.Mutex
	closed  bool
}

func New() *Bridge {
	return &Bridge{}
}

// Ask registers a new question, hands its id to publish and blocks until an
// answer arrives, the timeout elapses, ctx is done or Cancel is called.
// A non-positive timeout means DefaultTimeout. On a closed bridge Ask fails
// with KindCancelled without publishing.
func (b *Bridge) Ask(ctx context.Context, timeout time.Duration, publish func(id string)) (protocol.Answer, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cell := newCell(uuid.NewString())

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return protocol.Answer{}, errors.Cancelled(errors.PhaseBridge, "question "+cell.id, nil)
	}
	if b.current != nil {
		b.current.cancel()
	}
	b.current = cell
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.current == cell {
			b.current = nil
		}
		b.mu.Unlock()
	}()

	if publish != nil {
		publish(cell.id)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case a := <-cell.ch:
		return a, nil
	case <-cell.cancelled:
		return protocol.Answer{}, errors.Cancelled(errors.PhaseBridge, "question "+cell.id, nil)
	case <-ctx.Done():
		return protocol.Answer{}, errors.Cancelled(errors.PhaseBridge, "question "+cell.id, ctx.Err())
	case <-timer.C:
		return protocol.Answer{}, errors.Timeout(errors.PhaseBridge, "question "+cell.id, timeout)
	}
}

// Answer delivers a to the pending question. It reports false when nothing
// is pending or the question was already answered.
func (b *Bridge) Answer(a protocol.Answer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return false
	}
	return b.current.Fulfil(a)
}

// AnswerID is Answer restricted to the question with the given id.
func (b *Bridge) AnswerID(id string, a protocol.Answer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || b.current.id != id {
		return false
	}
	return b.current.Fulfil(a)
}

// Pending returns the id of the question currently waiting, if any.
func (b *Bridge) Pending() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return "", false
	}
	return b.current.id, true
}

// Cancel releases a blocked Ask, which returns a KindCancelled error.
func (b *Bridge) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.cancel()
	}
}

// Close cancels the pending question and makes every later Ask fail until
// Open is called.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.current != nil {
		b.current.cancel()
	}
}

// Open accepts questions again after Close.
func (b *Bridge) Open() {
	b.mu.Lock()
	b.closed = false
	b.mu.Unlock()
}
