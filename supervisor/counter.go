package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wippyai/qsp-runtime/state"
)

// counter drives the periodic counter tick. The loop ticks, then sleeps for
// the interval current at that moment.
type counter struct {
	tick     func()
	cancel   context.CancelFunc
	done     chan struct{}
	interval atomic.Int64
	mu       sync.Mutex
	disabled int
	enabled  bool
	closed   bool
}

func newCounter(interval time.Duration, tick func()) *counter {
	c := &counter{tick: tick}
	c.setInterval(interval)
	return c
}

// setInterval changes the period from the next sleep on. Non-positive
// values restore the default.
func (c *counter) setInterval(d time.Duration) {
	if d <= 0 {
		d = state.DefaultCounterInterval
	}
	c.interval.Store(int64(d))
}

func (c *counter) Interval() time.Duration {
	return time.Duration(c.interval.Load())
}

// enable lets the loop run and starts it unless it is held off.
func (c *counter) enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
	c.startLocked()
}

// disable cancels the loop and waits for it to exit.
func (c *counter) disable() {
	c.mu.Lock()
	c.enabled = false
	cancel, done := c.detachLocked()
	c.mu.Unlock()
	join(cancel, done)
}

// close stops the loop for good.
func (c *counter) close() {
	c.mu.Lock()
	c.closed = true
	c.enabled = false
	cancel, done := c.detachLocked()
	c.mu.Unlock()
	join(cancel, done)
}

// withDisabled runs fn with the loop cancelled and joined. The loop is
// rescheduled afterwards, also when fn panics. Calls nest.
func (c *counter) withDisabled(fn func()) {
	c.mu.Lock()
	c.disabled++
	cancel, done := c.detachLocked()
	c.mu.Unlock()
	join(cancel, done)

	defer func() {
		c.mu.Lock()
		c.disabled--
		c.startLocked()
		c.mu.Unlock()
	}()
	fn()
}

func (c *counter) running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *counter) startLocked() {
	if c.cancel != nil || c.closed || !c.enabled || c.disabled > 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	go c.loop(ctx, done)
}

func (c *counter) detachLocked() (context.CancelFunc, chan struct{}) {
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	return cancel, done
}

func join(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *counter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		c.tick()

		timer := time.NewTimer(c.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
