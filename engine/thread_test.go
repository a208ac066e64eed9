package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/wippyai/qsp-runtime/errors"
)

// eventLog records hook and task order across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func stop(t *testing.T, th *Thread) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, th.Stop(ctx))
}

func TestTasksRunInOrderBetweenInitAndTerminate(t *testing.T) {
	var log eventLog
	th := NewThread("test", Hooks{
		Init:      func(context.Context) error { log.add("init"); return nil },
		Terminate: func(context.Context) { log.add("terminate") },
	})

	// submitted before start: buffered until init finished
	for _, name := range []string{"a", "b"} {
		require.True(t, th.Submit(func(context.Context) { log.add(name) }))
	}
	th.Start()
	require.True(t, th.Submit(func(context.Context) { log.add("c") }))

	stop(t, th)
	assert.Equal(t, []string{"init", "a", "b", "c", "terminate"}, log.snapshot())
}

func TestInitFailureKeepsLoopRunning(t *testing.T) {
	boom := errors.New("boom")
	ran := make(chan struct{})
	th := NewThread("test", Hooks{
		Init: func(context.Context) error { return boom },
	})
	th.Start()
	th.Submit(func(context.Context) { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run after failed init")
	}
	assert.ErrorIs(t, th.InitErr(), boom)
	stop(t, th)
}

func TestSubmitAfterStopIsRejected(t *testing.T) {
	th := NewThread("test", Hooks{})
	th.Start()
	stop(t, th)
	assert.False(t, th.Submit(func(context.Context) {}))
	assert.False(t, th.TrySubmit(func(context.Context) {}))
}

func TestStopWithoutStart(t *testing.T) {
	terminated := false
	th := NewThread("test", Hooks{Terminate: func(context.Context) { terminated = true }})
	stop(t, th)
	assert.False(t, terminated)
	th.Start()
	select {
	case <-th.Done():
	default:
		t.Fatal("done must stay closed")
	}
}

func TestTrySubmitSkipsWhileBusy(t *testing.T) {
	th := NewThread("test", Hooks{})
	th.Start()
	defer stop(t, th)

	entered := make(chan struct{})
	release := make(chan struct{})
	th.Submit(func(context.Context) {
		close(entered)
		<-release
	})
	<-entered

	assert.True(t, th.Busy())
	assert.False(t, th.TrySubmit(func(context.Context) { t.Error("tick ran while busy") }))
	close(release)
}

func TestTrySubmitDoesNotAccumulate(t *testing.T) {
	th := NewThread("test", Hooks{})
	var mu sync.Mutex
	ticks := 0
	tick := func(context.Context) {
		mu.Lock()
		ticks++
		mu.Unlock()
	}

	// not started: the first tick stays queued, later ones are skipped
	require.True(t, th.TrySubmit(tick))
	assert.False(t, th.TrySubmit(tick))
	assert.False(t, th.TrySubmit(tick))
	assert.Equal(t, 1, th.Pending())

	th.Start()
	stop(t, th)
	assert.Equal(t, 1, ticks)
}

func TestTrySubmitAgainAfterRun(t *testing.T) {
	th := NewThread("test", Hooks{})
	th.Start()
	defer stop(t, th)

	done := make(chan struct{}, 2)
	require.True(t, th.TrySubmit(func(context.Context) { done <- struct{}{} }))
	<-done
	require.Eventually(t, func() bool {
		return th.TrySubmit(func(context.Context) { done <- struct{}{} })
	}, time.Second, 5*time.Millisecond)
	<-done
}

func TestPanicInTaskIsRecovered(t *testing.T) {
	th := NewThread("test", Hooks{})
	th.Start()
	defer stop(t, th)

	th.Submit(func(context.Context) { panic("engine bug") })
	ran := make(chan struct{})
	th.Submit(func(context.Context) { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("loop died after panic")
	}
	assert.False(t, th.Busy())
}

func TestPanicInInitIsReported(t *testing.T) {
	th := NewThread("test", Hooks{Init: func(context.Context) error { panic("bad init") }})
	th.Start()
	stop(t, th)
	require.Error(t, th.InitErr())
	assert.Contains(t, th.InitErr().Error(), "bad init")
}

func TestOnThread(t *testing.T) {
	th := NewThread("test", Hooks{})
	other := NewThread("other", Hooks{})
	th.Start()
	defer stop(t, th)

	result := make(chan [2]bool, 1)
	th.Submit(func(ctx context.Context) {
		result <- [2]bool{th.OnThread(ctx), other.OnThread(ctx)}
	})
	got := <-result
	assert.True(t, got[0])
	assert.False(t, got[1])
	assert.False(t, th.OnThread(context.Background()))
}

func TestStopTimeoutCancelsTaskContext(t *testing.T) {
	var log eventLog
	th := NewThread("test", Hooks{Terminate: func(ctx context.Context) {
		if ctx.Err() == nil {
			log.add("terminate")
		}
	}})
	th.Start()

	entered := make(chan struct{})
	th.Submit(func(ctx context.Context) {
		close(entered)
		<-ctx.Done()
		log.add("aborted")
	})
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := th.Stop(ctx)
	require.Error(t, err)
	assert.True(t, qerrors.IsKind(err, qerrors.KindTimeout))

	select {
	case <-th.Done():
	case <-time.After(time.Second):
		t.Fatal("thread did not exit after cancel")
	}
	assert.Equal(t, []string{"aborted", "terminate"}, log.snapshot())
}

func TestQueuedTasksFinishOnStop(t *testing.T) {
	th := NewThread("test", Hooks{})
	var mu sync.Mutex
	count := 0
	for i := 0; i < 100; i++ {
		th.Submit(func(context.Context) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	th.Start()
	stop(t, th)
	assert.Equal(t, 100, count)
}
