package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

// fakeEngine is a scriptable RawEngine. Hooks run on the engine thread with
// access to the bound callbacks.
type fakeEngine struct {
	mu        sync.Mutex
	cb        Callbacks
	calls     []string
	vars      map[string]int64
	lastErr   *errors.ScriptError
	loaded    []byte
	saved     []byte
	actions   []state.Item
	objects   []state.Item
	main      string
	failLoad  bool
	onRestart func(ctx context.Context, cb Callbacks)
	onExec    func(ctx context.Context, cb Callbacks, code string) bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{vars: map[string]int64{}}
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) Init(context.Context) error  { e.record("init"); return nil }
func (e *fakeEngine) Terminate(context.Context)   { e.record("terminate") }
func (e *fakeEngine) Bind(cb Callbacks)           { e.cb = cb }
func (e *fakeEngine) SetInputText(_ context.Context, text string) {
	e.record("input:" + text)
}

func (e *fakeEngine) LoadGameWorld(_ context.Context, f GameFile) bool {
	e.record("load:" + f.Name)
	data, err := io.ReadAll(f.Data)
	if err != nil || e.failLoad {
		e.mu.Lock()
		e.lastErr = &errors.ScriptError{Location: "start", Description: "bad syntax", Line: 3, Code: 101}
		e.mu.Unlock()
		return false
	}
	e.mu.Lock()
	e.loaded = data
	e.mu.Unlock()
	return true
}

func (e *fakeEngine) OpenSavedGame(_ context.Context, f GameFile) bool {
	data, _ := io.ReadAll(f.Data)
	e.record("open_saved:" + string(data))
	return true
}

func (e *fakeEngine) SaveGame(_ context.Context, w io.Writer) bool {
	e.record("save")
	_, err := w.Write([]byte("saved-state"))
	return err == nil
}

func (e *fakeEngine) RestartGame(ctx context.Context) bool {
	e.record("restart")
	if e.onRestart != nil {
		e.onRestart(ctx, e.cb)
	}
	return true
}

func (e *fakeEngine) SetSelectedAction(_ context.Context, i int) bool {
	e.record(fmt.Sprintf("sel_action:%d", i))
	return true
}

func (e *fakeEngine) ExecSelectedAction(context.Context) bool { e.record("exec_action"); return true }

func (e *fakeEngine) SetSelectedObject(_ context.Context, i int) bool {
	e.record(fmt.Sprintf("sel_object:%d", i))
	return true
}

func (e *fakeEngine) ExecUserInput(context.Context) bool { e.record("exec_input"); return true }

func (e *fakeEngine) ExecString(ctx context.Context, code string) bool {
	e.record("exec:" + code)
	if e.onExec != nil {
		return e.onExec(ctx, e.cb, code)
	}
	return true
}

func (e *fakeEngine) ExecCounter(context.Context) bool { e.record("counter"); return true }
func (e *fakeEngine) MainDesc(context.Context) string  { return e.main }
func (e *fakeEngine) VarsDesc(context.Context) string  { return "vars" }

func (e *fakeEngine) Actions(context.Context) []state.Item { return e.actions }
func (e *fakeEngine) Objects(context.Context) []state.Item { return e.objects }

func (e *fakeEngine) NumVar(_ context.Context, name string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vars[name]
	return v, ok
}

func (e *fakeEngine) LastError(context.Context) *errors.ScriptError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// fakeHost records everything an adapter hands to its owner. respond, when
// set, runs for every published request on the engine thread.
type fakeHost struct {
	mu        sync.Mutex
	requests  []protocol.Request
	states    []state.GameState
	ui        state.UIConfig
	disabled  int
	intervals []time.Duration
	respond   func(r protocol.Request)
}

func (h *fakeHost) Publish(r protocol.Request) {
	h.mu.Lock()
	h.requests = append(h.requests, r)
	respond := h.respond
	h.mu.Unlock()
	if respond != nil {
		respond(r)
	}
}

func (h *fakeHost) SetGameState(s state.GameState) {
	h.mu.Lock()
	h.states = append(h.states, s)
	h.mu.Unlock()
}

func (h *fakeHost) SetUIConfig(c state.UIConfig) {
	h.mu.Lock()
	h.ui = c
	h.mu.Unlock()
}

func (h *fakeHost) UIConfig() state.UIConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ui
}

func (h *fakeHost) DoWithCounterDisabled(fn func()) {
	h.mu.Lock()
	h.disabled++
	h.mu.Unlock()
	fn()
}

func (h *fakeHost) SetCounterInterval(d time.Duration) {
	h.mu.Lock()
	h.intervals = append(h.intervals, d)
	h.mu.Unlock()
}

func (h *fakeHost) Requests() []protocol.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Request(nil), h.requests...)
}

func (h *fakeHost) LastState() state.GameState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.states) == 0 {
		return state.GameState{}
	}
	return h.states[len(h.states)-1]
}

func (h *fakeHost) Errors() []string {
	var out []string
	for _, r := range h.Requests() {
		if e, ok := r.(protocol.ShowError); ok {
			out = append(out, e.Message)
		}
	}
	return out
}

// memStorage keeps files in memory under "mem:" handles.
type memStorage struct {
	mu       sync.Mutex
	files    map[string][]byte
	readable map[string]bool
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}, readable: map[string]bool{}}
}

func (s *memStorage) put(name string, data []byte, readable bool) state.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
	s.readable[name] = readable
	return state.Handle("mem:" + name)
}

func (s *memStorage) get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.files[name]
	return d, ok
}

func (s *memStorage) Resolve(_ state.Handle, p string, access qspruntime.Access, _ string) (state.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[p]; !ok && access == qspruntime.AccessRead {
		return "", errors.Resolution(p, nil)
	}
	return state.Handle("mem:" + p), nil
}

func (s *memStorage) Readable(h state.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readable[strings.TrimPrefix(string(h), "mem:")]
}

func (s *memStorage) Open(h state.Handle) (io.ReadCloser, error) {
	data, ok := s.get(strings.TrimPrefix(string(h), "mem:"))
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "file", string(h))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) Create(h state.Handle) (io.WriteCloser, error) {
	return &memFile{s: s, name: strings.TrimPrefix(string(h), "mem:")}, nil
}

type memFile struct {
	bytes.Buffer
	s    *memStorage
	name string
}

func (f *memFile) Close() error {
	f.s.put(f.name, f.Bytes(), true)
	return nil
}

type fixture struct {
	engine  *fakeEngine
	host    *fakeHost
	storage *memStorage
	adapter *Adapter
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()
	f := &fixture{engine: newFakeEngine(), host: &fakeHost{}, storage: newMemStorage()}
	a, err := New(Config{
		Name:          "fake",
		Engine:        f.engine,
		Host:          f.host,
		Storage:       f.storage,
		AnswerTimeout: timeout,
	})
	require.NoError(t, err)
	f.adapter = a
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.adapter.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.adapter.Stop(ctx)
	})
}

// flush waits until every task queued so far has run.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	th := f.adapter.currentThread()
	require.NotNil(t, th)
	done := make(chan struct{})
	require.True(t, th.Submit(func(context.Context) { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine thread did not drain")
	}
}

// onThread runs fn on the engine thread and waits for it.
func (f *fixture) onThread(t *testing.T, fn func(ctx context.Context)) {
	t.Helper()
	th := f.adapter.currentThread()
	require.NotNil(t, th)
	done := make(chan struct{})
	require.True(t, th.Submit(func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine task did not finish")
	}
}

func (f *fixture) runGame(t *testing.T) state.GameRef {
	t.Helper()
	file := f.storage.put("game.qsp", []byte("world"), true)
	ref := state.GameRef{ID: 7, Title: "Demo", Dir: "mem:", File: file}
	require.True(t, f.adapter.RunGame(ref))
	f.flush(t)
	return ref
}
