package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/qsp-runtime/errors"
)

// Task is a unit of work executed on the engine thread. ctx is cancelled
// only when the thread is forced down by a Stop deadline.
type Task func(ctx context.Context)

// Hooks run on the engine thread: Init before the first task, Terminate
// after the last one.
type Hooks struct {
	Init      func(ctx context.Context) error
	Terminate func(ctx context.Context)
}

type threadKey struct{}

// Thread owns one goroutine locked to an OS thread. Every engine call is a
// Task submitted here, so the engine is only ever entered from that thread
// and never concurrently.
type Thread struct {
	ctx       context.Context
	cancel    context.CancelFunc
	queue     *taskQueue
	done      chan struct{}
	log       *zap.Logger
	hooks     Hooks
	name      string
	initErr   atomic.Pointer[error]
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	busy      atomic.Bool
	tickQueue atomic.Bool
}

// NewThread creates a stopped thread. Tasks may be submitted before Start;
// they run in order once Init finished.
func NewThread(name string, hooks Hooks) *Thread {
	t := &Thread{
		name:  name,
		hooks: hooks,
		queue: newTaskQueue(),
		done:  make(chan struct{}),
		log:   Logger().With(zap.String("thread", name)),
	}
	t.ctx, t.cancel = context.WithCancel(context.WithValue(context.Background(), threadKey{}, t))
	return t
}

func (t *Thread) Name() string { return t.name }

// Start spawns the engine goroutine. Only the first call has an effect.
func (t *Thread) Start() {
	t.startOnce.Do(func() {
		t.started.Store(true)
		go t.run()
	})
}

// Submit queues task for execution and returns immediately. It reports false
// once the thread is stopping.
func (t *Thread) Submit(task Task) bool {
	if task == nil {
		return false
	}
	return t.queue.push(task)
}

// TrySubmit queues task unless the engine is busy or an earlier TrySubmit
// task has not run yet. Used for periodic work that must never pile up.
func (t *Thread) TrySubmit(task Task) bool {
	if task == nil || t.busy.Load() {
		return false
	}
	if !t.tickQueue.CompareAndSwap(false, true) {
		return false
	}
	ok := t.queue.push(func(ctx context.Context) {
		t.tickQueue.Store(false)
		task(ctx)
	})
	if !ok {
		t.tickQueue.Store(false)
	}
	return ok
}

// Busy reports whether a task is executing, including one blocked in an
// engine callback waiting for an answer.
func (t *Thread) Busy() bool { return t.busy.Load() }

// Pending returns the number of queued tasks.
func (t *Thread) Pending() int { return t.queue.len() }

// InitErr returns the error Init failed with, if any.
func (t *Thread) InitErr() error {
	if p := t.initErr.Load(); p != nil {
		return *p
	}
	return nil
}

// OnThread reports whether ctx belongs to a task or hook of this thread.
func (t *Thread) OnThread(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(threadKey{}).(*Thread)
	return owner == t
}

// Done is closed after Terminate returned and the goroutine exited.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Stop rejects new tasks, lets queued ones finish, runs Terminate and waits
// for the goroutine. If ctx ends first the engine context is cancelled and
// a timeout error is returned; Terminate still runs on the thread.
func (t *Thread) Stop(ctx context.Context) error {
	t.stopOnce.Do(func() {
		t.queue.close()
		if !t.started.Load() {
			t.startOnce.Do(func() { close(t.done) })
		}
	})

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
	}

	t.cancel()
	t.log.Warn("engine thread did not stop in time, cancelling", zap.Int("pending", t.queue.len()))

	var after time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		after = time.Until(deadline)
	}
	return errors.New(errors.PhaseThread, errors.KindTimeout).
		Path(t.name).
		Detail("stop did not complete within %v", after).
		Cause(ctx.Err()).
		Build()
}

func (t *Thread) run() {
	defer close(t.done)
	defer t.cancel()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	t.log.Debug("engine thread started")

	if t.hooks.Init != nil {
		if err := t.guard("init", func() error { return t.hooks.Init(t.ctx) }); err != nil {
			t.initErr.Store(&err)
			t.log.Error("engine init failed", zap.Error(err))
		}
	}

	for {
		task, ok := t.queue.next(t.ctx)
		if !ok {
			break
		}
		t.exec(task)
	}

	if t.hooks.Terminate != nil {
		// terminate must reach the engine even after a forced stop
		termCtx := context.WithoutCancel(t.ctx)
		_ = t.guard("terminate", func() error {
			t.hooks.Terminate(termCtx)
			return nil
		})
	}
	t.log.Debug("engine thread exited")
}

func (t *Thread) exec(task Task) {
	t.busy.Store(true)
	defer t.busy.Store(false)
	_ = t.guard("task", func() error {
		task(t.ctx)
		return nil
	})
}

// guard converts a panic in engine code into a logged error so the loop
// keeps running.
func (t *Thread) guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("engine panic recovered",
				zap.String("stage", stage),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = errors.New(errors.PhaseThread, errors.KindInvalidData).
				Path(t.name, stage).
				Value(r).
				Detail("panic: %v", r).
				Build()
		}
	}()
	return fn()
}
