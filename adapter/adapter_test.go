package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Engine: newFakeEngine(), Host: &fakeHost{}})
	assert.Error(t, err)
}

func TestCommandsBeforeStartAreDropped(t *testing.T) {
	f := newFixture(t, time.Second)
	assert.False(t, f.adapter.ExecuteCode("x = 1"))
	assert.False(t, f.adapter.TickCounter())
	assert.False(t, f.adapter.Started())
	assert.NoError(t, f.adapter.Stop(context.Background()))
}

func TestRunGameSuccess(t *testing.T) {
	f := newFixture(t, time.Second)
	f.engine.main = "You are in a room"
	f.engine.actions = []state.Item{{Text: "Go north"}}
	f.engine.onRestart = func(ctx context.Context, cb Callbacks) { cb.OnRefresh(ctx, true) }
	f.start(t)

	ref := f.runGame(t)

	assert.Equal(t, []string{"init", "load:mem:game.qsp", "restart"}, f.engine.Calls())

	reqs := f.host.Requests()
	require.NotEmpty(t, reqs)
	stop, ok := reqs[0].(protocol.StopAudio)
	require.True(t, ok, "audio is stopped before loading")
	assert.True(t, stop.All)

	s := f.host.LastState()
	assert.True(t, s.Running)
	assert.Equal(t, ref, s.Ref())
	assert.Equal(t, "You are in a room", s.MainText)
	assert.Equal(t, "Go north", s.Actions[0].Text)
	assert.True(t, f.adapter.Running())
	assert.Equal(t, 1, f.host.disabled)
	assert.Empty(t, f.host.Errors())
}

func TestRunGameParseFailure(t *testing.T) {
	f := newFixture(t, time.Second)
	f.engine.failLoad = true
	f.start(t)

	f.runGame(t)

	assert.NotContains(t, f.engine.Calls(), "restart")
	errs := f.host.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Location: start")
	assert.Contains(t, errs[0], "Line: 3")
	assert.Contains(t, errs[0], "Error number: 101")
	assert.Contains(t, errs[0], "Description: bad syntax")
	assert.False(t, f.host.LastState().Running)
	assert.False(t, f.adapter.Running())

	// the adapter stays usable
	require.True(t, f.adapter.ExecuteCode("x = 1"))
	f.flush(t)
	assert.Contains(t, f.engine.Calls(), "exec:x = 1")
}

func TestRunGameUnreadableFile(t *testing.T) {
	f := newFixture(t, time.Second)
	f.start(t)

	require.True(t, f.adapter.RunGame(state.GameRef{ID: 1, File: "mem:missing.qsp"}))
	f.flush(t)

	assert.Equal(t, []string{"init"}, f.engine.Calls())
	errs := f.host.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "cannot open game file")
	assert.False(t, f.host.LastState().Running)
}

func TestRestartUsesLastIdentity(t *testing.T) {
	f := newFixture(t, time.Second)
	f.start(t)
	ref := f.runGame(t)

	require.True(t, f.adapter.RestartGame())
	f.flush(t)

	assert.Equal(t, []string{"init", "load:mem:game.qsp", "restart", "load:mem:game.qsp", "restart"}, f.engine.Calls())
	assert.Equal(t, ref, f.host.LastState().Ref())
}

func TestCommandsRunInOrder(t *testing.T) {
	f := newFixture(t, time.Second)
	f.start(t)

	f.adapter.ActionClicked(2)
	f.adapter.ObjectSelected(1)
	f.adapter.InputSubmitted("look")
	f.adapter.ExecuteCode("gt 'end'")
	f.flush(t)

	assert.Equal(t, []string{
		"init",
		"sel_action:2", "exec_action",
		"sel_object:1",
		"input:look", "exec_input",
		"exec:gt 'end'",
	}, f.engine.Calls())
}

func TestSaveAndLoadState(t *testing.T) {
	f := newFixture(t, time.Second)
	f.start(t)

	require.True(t, f.adapter.SaveState("mem:slot1.sav"))
	f.flush(t)
	data, ok := f.storage.get("slot1.sav")
	require.True(t, ok)
	assert.Equal(t, "saved-state", string(data))

	require.True(t, f.adapter.LoadState("mem:slot1.sav"))
	f.flush(t)
	assert.Contains(t, f.engine.Calls(), "open_saved:saved-state")
	assert.Equal(t, 1, f.host.disabled)

	require.True(t, f.adapter.LoadState("mem:nope.sav"))
	f.flush(t)
	assert.Len(t, f.host.Errors(), 1, "load failures are reported")
}

func TestTickCounterOnlyForRunningGame(t *testing.T) {
	f := newFixture(t, time.Second)
	f.start(t)

	require.True(t, f.adapter.TickCounter())
	f.flush(t)
	assert.NotContains(t, f.engine.Calls(), "counter")

	f.runGame(t)
	require.True(t, f.adapter.TickCounter())
	f.flush(t)
	assert.Contains(t, f.engine.Calls(), "counter")
}

func TestStopRunsTerminateLast(t *testing.T) {
	f := newFixture(t, time.Second)
	require.NoError(t, f.adapter.Start(context.Background()))
	f.adapter.ExecuteCode("a")
	f.adapter.ExecuteCode("b")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.adapter.Stop(ctx))

	assert.Equal(t, []string{"init", "exec:a", "exec:b", "terminate"}, f.engine.Calls())
	assert.False(t, f.adapter.Started())
	assert.False(t, f.adapter.ExecuteCode("c"))
}

func TestStartAfterStopUsesFreshThread(t *testing.T) {
	f := newFixture(t, time.Second)
	require.NoError(t, f.adapter.Start(context.Background()))
	require.NoError(t, f.adapter.Stop(context.Background()))

	f.start(t)
	f.flush(t)
	assert.Equal(t, []string{"init", "terminate", "init"}, f.engine.Calls())
}

func TestStartWaitsForTimedOutStop(t *testing.T) {
	f := newFixture(t, time.Second)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.engine.onExec = func(context.Context, Callbacks, string) bool {
		close(entered)
		<-release // ignores cancellation
		return true
	}
	require.NoError(t, f.adapter.Start(context.Background()))
	require.True(t, f.adapter.ExecuteCode("slow"))
	<-entered

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.adapter.Stop(short)
	assert.True(t, errors.IsKind(err, errors.KindTimeout))

	short2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	err = f.adapter.Start(short2)
	assert.True(t, errors.IsKind(err, errors.KindTimeout))
	assert.False(t, f.adapter.Started())
	assert.Equal(t, []string{"init", "exec:slow"}, f.engine.Calls())

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(release)
	}()
	ctx, cancel3 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel3()
	require.NoError(t, f.adapter.Start(ctx))
	f.flush(t)
	assert.Equal(t, []string{"init", "exec:slow", "terminate", "init"}, f.engine.Calls())
	require.NoError(t, f.adapter.Stop(ctx))
}

func TestStopAgainWaitsForUnwindingThread(t *testing.T) {
	f := newFixture(t, time.Second)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.engine.onExec = func(context.Context, Callbacks, string) bool {
		close(entered)
		<-release
		return true
	}
	require.NoError(t, f.adapter.Start(context.Background()))
	require.True(t, f.adapter.ExecuteCode("slow"))
	<-entered

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, f.adapter.Stop(short))

	close(release)
	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	require.NoError(t, f.adapter.Stop(ctx))
	assert.Equal(t, "terminate", f.engine.Calls()[len(f.engine.Calls())-1])
}

func TestBlockingCallbackAfterStopDoesNotWait(t *testing.T) {
	f := newFixture(t, time.Minute)
	require.NoError(t, f.adapter.Start(context.Background()))
	require.NoError(t, f.adapter.Stop(context.Background()))

	start := time.Now()
	assert.Equal(t, "", f.adapter.OnInputBox(context.Background(), "name?"))
	assert.Less(t, time.Since(start), time.Second)
	for _, r := range f.host.Requests() {
		_, isInput := r.(protocol.ShowInput)
		assert.False(t, isInput)
	}
}
