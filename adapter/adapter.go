// Package adapter drives one engine variant from an asynchronous world.
//
// An Adapter owns the engine thread for its RawEngine, turns commands into
// tasks on that thread, and implements the engine's Callbacks: refresh builds
// new GameState and UIConfig snapshots, fire-and-forget callbacks become
// published requests, and blocking callbacks wait on a bridge question with
// a safe default when no answer comes.
package adapter

import (
	"context"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/bridge"
	"github.com/wippyai/qsp-runtime/engine"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

// Config holds the collaborators of an adapter.
type Config struct {
	Engine        RawEngine
	Host          Host
	Storage       qspruntime.Storage
	Logger        *zap.Logger
	Name          string
	AnswerTimeout time.Duration
}

// Adapter serialises all access to one RawEngine.
type Adapter struct {
	raw     RawEngine
	host    Host
	storage qspruntime.Storage
	bridge  *bridge.Bridge
	log     *zap.Logger
	name    string

	mu     sync.Mutex
	thread *engine.Thread
	// prev is a stopped thread that may still be unwinding towards
	// Terminate. No new thread starts until it is done.
	prev *engine.Thread
	quit chan struct{}

	timeout  atomic.Int64
	running  atomic.Bool
	stopping atomic.Bool

	// touched on the engine thread only
	game      state.GameState
	startTime time.Time
	lastMs    time.Time
}

var _ Callbacks = (*Adapter)(nil)

// New creates an idle adapter and binds it as the engine's callback
// receiver.
func New(cfg Config) (*Adapter, error) {
	if cfg.Engine == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "adapter requires an engine")
	}
	if cfg.Host == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "adapter requires a host")
	}
	if cfg.Storage == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "adapter requires storage")
	}
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	a := &Adapter{
		raw:     cfg.Engine,
		host:    cfg.Host,
		storage: cfg.Storage,
		bridge:  bridge.New(),
		name:    cfg.Name,
		log:     log.With(zap.String("engine", cfg.Name)),
	}
	a.SetAnswerTimeout(cfg.AnswerTimeout)
	a.raw.Bind(a)
	return a, nil
}

func (a *Adapter) Name() string { return a.name }

// SetAnswerTimeout changes how long blocking callbacks wait. Non-positive
// values mean bridge.DefaultTimeout.
func (a *Adapter) SetAnswerTimeout(d time.Duration) {
	if d <= 0 {
		d = bridge.DefaultTimeout
	}
	a.timeout.Store(int64(d))
}

func (a *Adapter) answerTimeout() time.Duration {
	return time.Duration(a.timeout.Load())
}

// Start spawns a fresh engine thread running the engine's Init. Commands
// issued right after Start queue until Init finished. If an earlier thread
// is still shutting down, Start waits for it first and fails when ctx ends
// before it exits.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.Wait(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.thread != nil {
		return nil
	}
	a.stopping.Store(false)
	a.bridge.Open()
	a.quit = make(chan struct{})
	a.thread = engine.NewThread(a.name, engine.Hooks{
		Init:      a.raw.Init,
		Terminate: a.raw.Terminate,
	})
	a.thread.Start()
	a.log.Info("engine started")
	return nil
}

// Stop releases any blocked callback, lets queued commands drain, runs the
// engine's Terminate and waits for the thread to exit. When ctx ends first
// the thread keeps unwinding in the background and the next Start waits
// for it.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	t := a.thread
	a.thread = nil
	if t != nil {
		a.stopping.Store(true)
		a.bridge.Close()
		close(a.quit)
		a.prev = t
	}
	a.mu.Unlock()

	if t == nil {
		return a.Wait(ctx)
	}
	err := t.Stop(ctx)
	a.running.Store(false)
	if err != nil {
		a.log.Warn("engine stop", zap.Error(err))
		return err
	}
	a.forget(t)
	a.log.Info("engine stopped")
	return nil
}

// Wait blocks until a previously stopped thread has exited.
func (a *Adapter) Wait(ctx context.Context) error {
	a.mu.Lock()
	prev := a.prev
	a.mu.Unlock()
	if prev == nil {
		return nil
	}

	select {
	case <-prev.Done():
		a.forget(prev)
		return nil
	case <-ctx.Done():
		return errors.New(errors.PhaseThread, errors.KindTimeout).
			Path(a.name).
			Detail("previous engine thread is still shutting down").
			Cause(ctx.Err()).
			Build()
	}
}

func (a *Adapter) forget(t *engine.Thread) {
	a.mu.Lock()
	if a.prev == t {
		a.prev = nil
	}
	a.mu.Unlock()
}

// Started reports whether the engine thread is up.
func (a *Adapter) Started() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thread != nil
}

// Running reports whether the last game started successfully.
func (a *Adapter) Running() bool { return a.running.Load() }

// Busy reports whether the engine is executing, including while it waits
// for an answer.
func (a *Adapter) Busy() bool {
	a.mu.Lock()
	t := a.thread
	a.mu.Unlock()
	return t != nil && t.Busy()
}

// PendingQuestion returns the id of the question the engine is waiting on.
func (a *Adapter) PendingQuestion() (string, bool) { return a.bridge.Pending() }

func (a *Adapter) currentThread() *engine.Thread {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thread
}

func (a *Adapter) submit(command string, task engine.Task) bool {
	t := a.currentThread()
	if t == nil || !t.Submit(task) {
		a.log.Debug("command dropped", zap.String("command", command))
		return false
	}
	return true
}

// RunGame loads and starts the game identified by ref.
func (a *Adapter) RunGame(ref state.GameRef) bool {
	return a.submit("run_game", func(ctx context.Context) { a.runGame(ctx, ref) })
}

// RestartGame reruns the current game from the start.
func (a *Adapter) RestartGame() bool {
	return a.submit("restart_game", func(ctx context.Context) { a.runGame(ctx, a.game.Ref()) })
}

// LoadState restores a saved state with the counter held off.
func (a *Adapter) LoadState(h state.Handle) bool {
	return a.submit("load_state", func(ctx context.Context) {
		a.host.DoWithCounterDisabled(func() { a.loadState(ctx, h) })
	})
}

// SaveState writes the current state to h.
func (a *Adapter) SaveState(h state.Handle) bool {
	return a.submit("save_state", func(ctx context.Context) { a.saveState(ctx, h) })
}

func (a *Adapter) ActionClicked(index int) bool {
	return a.submit("action", func(ctx context.Context) {
		if !a.raw.SetSelectedAction(ctx, index) {
			a.reportLastError(ctx, "set_selected_action")
		}
		if !a.raw.ExecSelectedAction(ctx) {
			a.reportLastError(ctx, "exec_selected_action")
		}
	})
}

func (a *Adapter) ObjectSelected(index int) bool {
	return a.submit("object", func(ctx context.Context) {
		if !a.raw.SetSelectedObject(ctx, index) {
			a.reportLastError(ctx, "set_selected_object")
		}
	})
}

func (a *Adapter) InputSubmitted(text string) bool {
	return a.submit("input", func(ctx context.Context) {
		a.raw.SetInputText(ctx, text)
		if !a.raw.ExecUserInput(ctx) {
			a.reportLastError(ctx, "exec_user_input")
		}
	})
}

func (a *Adapter) ExecuteCode(code string) bool {
	return a.submit("exec", func(ctx context.Context) {
		if !a.raw.ExecString(ctx, code) {
			a.reportLastError(ctx, "exec_string")
		}
	})
}

// TickCounter queues one counter execution unless the engine is busy or a
// tick is already queued.
func (a *Adapter) TickCounter() bool {
	t := a.currentThread()
	if t == nil {
		return false
	}
	return t.TrySubmit(func(ctx context.Context) {
		if !a.game.Running {
			return
		}
		if !a.raw.ExecCounter(ctx) {
			a.reportLastError(ctx, "exec_counter")
		}
	})
}

// Answer resolves the question the engine is waiting on.
func (a *Adapter) Answer(ans protocol.Answer) bool { return a.bridge.Answer(ans) }

// AnswerID resolves the question with the given id; stale ids are dropped.
func (a *Adapter) AnswerID(id string, ans protocol.Answer) bool { return a.bridge.AnswerID(id, ans) }

func (a *Adapter) runGame(ctx context.Context, ref state.GameRef) {
	a.host.DoWithCounterDisabled(func() {
		a.running.Store(false)
		a.host.Publish(protocol.StopAudio{ID: newID(), All: true})

		a.game = a.game.WithIdentity(ref)
		a.host.SetGameState(a.game)

		f, err := a.storage.Open(ref.File)
		if err != nil {
			a.log.Warn("open game file", zap.String("file", ref.File.String()), zap.Error(err))
			a.showError(errors.LoadFailure(errors.PhaseLoad, "cannot open game file", err).Error())
			return
		}
		defer f.Close()

		if !a.raw.LoadGameWorld(ctx, GameFile{Data: f, Name: fileName(ref.File), IsNewGame: true}) {
			a.reportLastError(ctx, "load_game_world")
			return
		}

		a.startTime = time.Now()
		a.lastMs = time.Time{}

		if !a.raw.RestartGame(ctx) {
			a.reportLastError(ctx, "restart_game")
			return
		}

		a.game = a.game.WithRunning(true)
		a.running.Store(true)
		a.host.SetGameState(a.game)
		a.log.Info("game started", zap.Int64("id", ref.ID), zap.String("title", ref.Title))
	})
}

func (a *Adapter) loadState(ctx context.Context, h state.Handle) {
	f, err := a.storage.Open(h)
	if err != nil {
		a.showError(errors.LoadFailure(errors.PhaseLoad, "cannot open saved game", err).Error())
		return
	}
	defer f.Close()

	if !a.raw.OpenSavedGame(ctx, GameFile{Data: f, Name: fileName(h)}) {
		a.reportLastError(ctx, "open_saved_game")
	}
}

func (a *Adapter) saveState(ctx context.Context, h state.Handle) {
	w, err := a.storage.Create(h)
	if err != nil {
		a.showError(errors.Wrap(errors.PhaseSave, errors.KindResolution, err, "cannot create save file").Error())
		return
	}
	ok := a.raw.SaveGame(ctx, w)
	if cerr := w.Close(); cerr != nil && ok {
		a.showError(errors.Wrap(errors.PhaseSave, errors.KindInvalidData, cerr, "cannot write save file").Error())
		return
	}
	if !ok {
		a.reportLastError(ctx, "save_game")
	}
}

// reportLastError reads the engine's diagnostic right after a failed call
// and shows it.
func (a *Adapter) reportLastError(ctx context.Context, op string) {
	se := a.raw.LastError(ctx)
	if se == nil {
		a.log.Warn("engine call failed without diagnostic", zap.String("op", op))
		a.showError(errors.Script(op+" failed", nil).Diagnostic())
		return
	}
	a.log.Warn("engine call failed", zap.String("op", op), zap.Error(se))
	a.showError(se.Diagnostic())
}

func (a *Adapter) showError(message string) {
	a.host.Publish(protocol.ShowError{ID: newID(), Message: message})
}

func newID() string { return uuid.NewString() }

func fileName(h state.Handle) string {
	return path.Base(string(h))
}
