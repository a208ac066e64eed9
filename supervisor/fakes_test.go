package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/adapter"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/state"
)

// eventLog is shared by every fake engine of a fixture so the order of
// calls across engines can be checked.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// indexes returns the positions of event in order.
func (l *eventLog) indexes(event string) []int {
	var out []int
	for i, e := range l.Events() {
		if e == event {
			out = append(out, i)
		}
	}
	return out
}

type fakeEngine struct {
	mu      sync.Mutex
	name    string
	log     *eventLog
	cb      adapter.Callbacks
	calls   []string
	vars    map[string]int64
	onExec  func(ctx context.Context, cb adapter.Callbacks, code string)
	counter atomic.Int32
}

var _ adapter.RawEngine = (*fakeEngine)(nil)

func newFakeEngine(name string, log *eventLog) *fakeEngine {
	return &fakeEngine{name: name, log: log, vars: map[string]int64{}}
}

func (e *fakeEngine) record(format string, args ...any) {
	call := fmt.Sprintf(format, args...)
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
	if e.log != nil {
		e.log.add(e.name + ":" + call)
	}
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) has(call string) bool {
	for _, c := range e.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

func (e *fakeEngine) setExec(fn func(ctx context.Context, cb adapter.Callbacks, code string)) {
	e.mu.Lock()
	e.onExec = fn
	e.mu.Unlock()
}

func (e *fakeEngine) Init(context.Context) error { e.record("init"); return nil }
func (e *fakeEngine) Terminate(context.Context)  { e.record("terminate") }
func (e *fakeEngine) Bind(cb adapter.Callbacks)  { e.cb = cb }

func (e *fakeEngine) LoadGameWorld(_ context.Context, f adapter.GameFile) bool {
	_, _ = io.ReadAll(f.Data)
	e.record("load:%s", f.Name)
	return true
}

func (e *fakeEngine) OpenSavedGame(_ context.Context, f adapter.GameFile) bool {
	e.record("open-save:%s", f.Name)
	return true
}

func (e *fakeEngine) SaveGame(_ context.Context, w io.Writer) bool {
	e.record("save")
	_, err := w.Write([]byte("SAVE"))
	return err == nil
}

func (e *fakeEngine) RestartGame(ctx context.Context) bool {
	e.record("restart")
	e.cb.OnRefresh(ctx, true)
	return true
}

func (e *fakeEngine) SetSelectedAction(_ context.Context, i int) bool {
	e.record("action:%d", i)
	return true
}

func (e *fakeEngine) ExecSelectedAction(context.Context) bool { e.record("exec-action"); return true }

func (e *fakeEngine) SetSelectedObject(_ context.Context, i int) bool {
	e.record("object:%d", i)
	return true
}

func (e *fakeEngine) SetInputText(_ context.Context, text string) { e.record("input:%s", text) }
func (e *fakeEngine) ExecUserInput(context.Context) bool           { e.record("exec-input"); return true }

func (e *fakeEngine) ExecString(ctx context.Context, code string) bool {
	e.record("exec:%s", code)
	e.mu.Lock()
	fn := e.onExec
	e.mu.Unlock()
	if fn != nil {
		fn(ctx, e.cb, code)
	}
	return true
}

func (e *fakeEngine) ExecCounter(context.Context) bool {
	e.counter.Add(1)
	return true
}

func (e *fakeEngine) MainDesc(context.Context) string       { return "main" }
func (e *fakeEngine) VarsDesc(context.Context) string       { return "vars" }
func (e *fakeEngine) Actions(context.Context) []state.Item  { return nil }
func (e *fakeEngine) Objects(context.Context) []state.Item  { return nil }
func (e *fakeEngine) LastError(context.Context) *errors.ScriptError { return nil }

func (e *fakeEngine) NumVar(_ context.Context, name string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vars[name]
	return v, ok
}

// memStorage resolves "mem:<dir><path>" handles over an in-memory map.
type memStorage struct {
	mu    sync.Mutex
	files map[state.Handle][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[state.Handle][]byte{
		"mem:game.qsp":  []byte("QSPGAME"),
		"mem:music.wav": []byte("RIFF"),
		"mem:save1.sav": []byte("SAVED"),
	}}
}

func (m *memStorage) Resolve(dir state.Handle, path string, access qspruntime.Access, _ string) (state.Handle, error) {
	h := state.Handle(string(dir) + path)
	if access == qspruntime.AccessRead && !m.Readable(h) {
		return "", errors.Resolution(path, nil)
	}
	return h, nil
}

func (m *memStorage) Readable(h state.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[h]
	return ok
}

func (m *memStorage) Open(h state.Handle) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[h]
	if !ok {
		return nil, fmt.Errorf("%s: not found", h)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStorage) Create(h state.Handle) (io.WriteCloser, error) {
	return &memFile{m: m, h: h}, nil
}

func (m *memStorage) get(h state.Handle) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[h]
	return string(b), ok
}

type memFile struct {
	bytes.Buffer
	m *memStorage
	h state.Handle
}

func (f *memFile) Close() error {
	f.m.mu.Lock()
	f.m.files[f.h] = f.Bytes()
	f.m.mu.Unlock()
	return nil
}

type fakeAudio struct {
	mu      sync.Mutex
	calls   []string
	playing map[state.Handle]bool
}

func newFakeAudio() *fakeAudio { return &fakeAudio{playing: map[state.Handle]bool{}} }

func (a *fakeAudio) Play(h state.Handle, volume int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, fmt.Sprintf("play:%s:%d", h, volume))
	a.playing[h] = true
	return nil
}

func (a *fakeAudio) Stop(h state.Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "stop:"+h.String())
	delete(a.playing, h)
}

func (a *fakeAudio) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, "stop-all")
	a.playing = map[state.Handle]bool{}
}

func (a *fakeAudio) IsPlaying(h state.Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing[h]
}

func (a *fakeAudio) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

type fixture struct {
	sup       *Supervisor
	log       *eventLog
	byteEng   *fakeEngine
	sonnixEng *fakeEngine
	storage   *memStorage
	audio     *fakeAudio
	settings  *state.Value[state.Settings]
}

var demo = state.GameRef{ID: 7, Title: "Demo", Dir: "mem:", File: "mem:game.qsp"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := state.DefaultSettings()
	st.CounterInterval = 10 * time.Millisecond
	st.AnswerTimeout = 5 * time.Second

	log := &eventLog{}
	f := &fixture{
		log:       log,
		byteEng:   newFakeEngine("byte", log),
		sonnixEng: newFakeEngine("sonnix", log),
		storage:   newMemStorage(),
		audio:     newFakeAudio(),
		settings:  state.NewValue(st),
	}
	sup, err := New(Config{
		Storage:  f.storage,
		Audio:    f.audio,
		Settings: f.settings,
		Engines: map[state.Selector]adapter.RawEngine{
			state.SelectorByte:   f.byteEng,
			state.SelectorSonnix: f.sonnixEng,
		},
	})
	require.NoError(t, err)
	f.sup = sup
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Stop(ctx)
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sup.StartGame(context.Background(), demo))
	require.Eventually(t, func() bool {
		return f.sup.GameState().Load().Running
	}, 5*time.Second, 5*time.Millisecond)
}

// next receives from ch until a value of type T arrives.
func next[T any, R any](t *testing.T, ch <-chan R) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			require.True(t, ok, "stream closed")
			if x, ok := any(v).(T); ok {
				return x
			}
		case <-deadline:
			var zero T
			t.Fatalf("no %T received", zero)
			return zero
		}
	}
}

func hasPrefix(calls []string, prefix string) bool {
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
