package engine

import (
	"context"
	"sync"
)

// taskQueue is an unbounded FIFO of engine tasks. Submitters never block;
// the engine thread waits on signal, which coalesces wake-ups.
type taskQueue struct {
	signal chan struct{}
	tasks  []Task
	mu     sync.Mutex
	closed bool
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]Task, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// push appends a task. It returns false once the queue is closed.
func (q *taskQueue) push(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// next blocks until a task is available. It returns false when the queue is
// closed and drained, or when ctx is done.
func (q *taskQueue) next(ctx context.Context) (Task, bool) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			t := q.tasks[0]
			q.tasks[0] = nil
			if len(q.tasks) == 1 {
				q.tasks = q.tasks[:0]
			} else {
				q.tasks = q.tasks[1:]
			}
			q.mu.Unlock()
			return t, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// close rejects further pushes; queued tasks stay available to next.
func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
