// Package engine runs a single-threaded interpreter on a dedicated thread.
//
// A Thread owns one goroutine pinned with runtime.LockOSThread. It runs the
// Init hook, then drains submitted tasks in FIFO order, then runs Terminate
// as its very last action:
//
//	t := engine.NewThread("byte", engine.Hooks{
//	    Init:      raw.Init,
//	    Terminate: raw.Terminate,
//	})
//	t.Start()
//	t.Submit(func(ctx context.Context) { raw.ExecString(ctx, "x = 1") })
//	defer t.Stop(stopCtx)
//
// # Ordering
//
// Submit never blocks and never runs the task inline. Tasks submitted before
// Init completed are buffered and run afterwards in submission order. A
// failing Init is logged and the loop keeps serving tasks, which then see the
// engine in its failed state.
//
// # Busy and TrySubmit
//
// The thread is busy while a task executes, including while that task sits
// inside a blocking engine callback waiting for a UI answer. TrySubmit is
// the periodic-timer path: it does nothing when the thread is busy or when
// its previous task is still queued, so timer ticks never accumulate.
//
// # Shutdown
//
// Stop closes the queue, lets queued tasks finish and waits for Terminate.
// When the caller's deadline passes first, the task context is cancelled so
// a running guest call aborts, and Stop reports a timeout.
package engine
