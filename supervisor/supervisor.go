// Package supervisor owns the engine adapters and exposes one game session
// to a UI.
//
// A Supervisor builds an adapter per engine variant up front and runs at
// most one of them. It routes the running adapter's requests: audio goes to
// the AudioPlayer, file and playback questions are answered from Storage and
// the player, window changes go to Windows, and everything else goes to
// Requests. It also drives the counter tick and republishes user settings
// merged with the game's styling.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/adapter"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

// Status is the supervisor lifecycle state.
type Status int

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the collaborators of a Supervisor.
type Config struct {
	Storage qspruntime.Storage
	// Audio may be nil; audio requests are then ignored and nothing plays.
	Audio qspruntime.AudioPlayer
	// Settings is the live user settings cell. Nil means fixed defaults.
	Settings *state.Value[state.Settings]
	Engines  map[state.Selector]adapter.RawEngine
	Logger        *zap.Logger
	// AnswerTimeout overrides the settings' answer timeout when positive.
	AnswerTimeout time.Duration
}

// Supervisor is safe for concurrent use.
type Supervisor struct {
	storage  qspruntime.Storage
	audio    qspruntime.AudioPlayer
	log      *zap.Logger
	adapters map[state.Selector]*adapter.Adapter
	counter  *counter

	user      *state.Value[state.Settings]
	gameState *state.Value[state.GameState]
	uiConfig  *state.Value[state.UIConfig]
	merged    *state.Value[state.Settings]
	requests  state.Stream[protocol.Request]
	windows   state.Stream[protocol.WindowVisibilityChanged]

	fanCancel context.CancelFunc
	fanDone   chan struct{}

	answerTimeout time.Duration

	lifecycle sync.Mutex
	mu        sync.Mutex
	status    Status
	selector  state.Selector
	current   *adapter.Adapter
}

// New creates a supervisor with one idle adapter per configured engine.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Storage == nil {
		return nil, errors.InvalidInput(errors.PhaseSupervisor, "supervisor requires storage")
	}
	if len(cfg.Engines) == 0 {
		return nil, errors.InvalidInput(errors.PhaseSupervisor, "supervisor requires at least one engine")
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	user := cfg.Settings
	if user == nil {
		user = state.NewValue(state.DefaultSettings())
	}

	s := &Supervisor{
		storage:       cfg.Storage,
		audio:         cfg.Audio,
		log:           log,
		adapters:      make(map[state.Selector]*adapter.Adapter, len(cfg.Engines)),
		user:          user,
		gameState:     state.NewValue(state.GameState{}),
		uiConfig:      state.NewValue(state.UIConfig{}),
		merged:        state.NewValue(state.Merge(user.Load(), state.UIConfig{})),
		answerTimeout: cfg.AnswerTimeout,
	}
	s.counter = newCounter(user.Load().CounterInterval, s.tick)

	for sel, raw := range cfg.Engines {
		if !sel.Valid() || raw == nil {
			return nil, errors.InvalidInput(errors.PhaseSupervisor, "invalid engine "+sel.String())
		}
		h := &host{s: s}
		a, err := adapter.New(adapter.Config{
			Engine:        raw,
			Host:          h,
			Storage:       cfg.Storage,
			Logger:        log,
			Name:          sel.String(),
			AnswerTimeout: s.timeoutFor(user.Load()),
		})
		if err != nil {
			return nil, err
		}
		h.a = a
		s.adapters[sel] = a
	}

	s.startFanIn()
	return s, nil
}

func (s *Supervisor) timeoutFor(st state.Settings) time.Duration {
	if s.answerTimeout > 0 {
		return s.answerTimeout
	}
	return st.AnswerTimeout
}

// GameState is the snapshot of what the running engine last displayed.
func (s *Supervisor) GameState() *state.Value[state.GameState] { return s.gameState }

// UIConfig is the styling the running game requested.
func (s *Supervisor) UIConfig() *state.Value[state.UIConfig] { return s.uiConfig }

// Settings is the user settings merged with UIConfig.
func (s *Supervisor) Settings() *state.Value[state.Settings] { return s.merged }

// Requests carries dialogs, messages and errors for the UI.
func (s *Supervisor) Requests() *state.Stream[protocol.Request] { return &s.requests }

// Windows carries panel visibility changes.
func (s *Supervisor) Windows() *state.Stream[protocol.WindowVisibilityChanged] { return &s.windows }

// Status returns the lifecycle state and, while running, the engine in use.
func (s *Supervisor) Status() (Status, state.Selector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.selector
}

// Busy reports whether the running engine is executing or waiting for an
// answer.
func (s *Supervisor) Busy() bool {
	a := s.active()
	return a != nil && a.Busy()
}

// PendingQuestion returns the id of the question the engine waits on.
func (s *Supervisor) PendingQuestion() (string, bool) {
	a := s.active()
	if a == nil {
		return "", false
	}
	return a.PendingQuestion()
}

func (s *Supervisor) active() *adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Supervisor) isActive(a *adapter.Adapter) bool {
	return s.active() == a
}

// StartGame runs ref on the engine chosen in settings. A game already
// running is stopped first and its engine fully shut down.
func (s *Supervisor) StartGame(ctx context.Context, ref state.GameRef) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	st, _ := s.Status()
	if st == StatusStopped {
		return errors.Closed(errors.PhaseSupervisor, "supervisor")
	}

	user := s.user.Load()
	a, ok := s.adapters[user.Engine]
	if !ok {
		return errors.NotFound(errors.PhaseSupervisor, "engine", user.Engine.String())
	}

	if err := s.stopActive(ctx); err != nil {
		return err
	}
	// an earlier stop may have timed out with its thread still unwinding
	for _, other := range s.adapters {
		if err := other.Wait(ctx); err != nil {
			return err
		}
	}

	s.uiConfig.Store(state.UIConfig{})
	s.gameState.Store(state.GameState{}.WithIdentity(ref))
	a.SetAnswerTimeout(s.timeoutFor(user))
	s.counter.setInterval(user.CounterInterval)

	s.mu.Lock()
	s.current = a
	s.selector = user.Engine
	s.status = StatusRunning
	s.mu.Unlock()

	if err := a.Start(ctx); err != nil {
		s.mu.Lock()
		s.current = nil
		s.status = StatusNotStarted
		s.mu.Unlock()
		return err
	}
	if !a.RunGame(ref) {
		return errors.Closed(errors.PhaseSupervisor, "engine "+a.Name())
	}
	s.counter.enable()

	s.log.Info("game starting",
		zap.Int64("id", ref.ID),
		zap.String("title", ref.Title),
		zap.Stringer("engine", user.Engine))
	return nil
}

// stopActive shuts the running adapter down and waits for its thread.
func (s *Supervisor) stopActive(ctx context.Context) error {
	s.mu.Lock()
	a := s.current
	s.current = nil
	if s.status == StatusRunning {
		s.status = StatusNotStarted
	}
	s.mu.Unlock()

	s.counter.disable()
	if a == nil {
		return nil
	}
	if s.audio != nil {
		s.audio.StopAll()
	}
	return a.Stop(ctx)
}

// Stop shuts everything down. The supervisor cannot be restarted.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.status == StatusStopped {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.stopActive(ctx)

	s.mu.Lock()
	s.status = StatusStopped
	s.mu.Unlock()

	s.counter.close()
	s.fanCancel()
	<-s.fanDone
	s.requests.Close()
	s.windows.Close()

	s.log.Info("supervisor stopped", zap.Error(err))
	return err
}

// command runs fn against the running adapter.
func (s *Supervisor) command(name string, fn func(a *adapter.Adapter) bool) error {
	a := s.active()
	if a == nil {
		return errors.NotInitialized(errors.PhaseSupervisor, "game")
	}
	if !fn(a) {
		return errors.New(errors.PhaseSupervisor, errors.KindClosed).
			Detail("%s: engine %s is not accepting commands", name, a.Name()).Build()
	}
	return nil
}

func (s *Supervisor) RestartGame() error {
	return s.command("restart", (*adapter.Adapter).RestartGame)
}

// SaveGame writes the current state to h.
func (s *Supervisor) SaveGame(h state.Handle) error {
	return s.command("save", func(a *adapter.Adapter) bool { return a.SaveState(h) })
}

// LoadGame restores the state saved in h with the counter held off.
func (s *Supervisor) LoadGame(h state.Handle) error {
	return s.command("load", func(a *adapter.Adapter) bool { return a.LoadState(h) })
}

func (s *Supervisor) SelectAction(index int) error {
	return s.command("action", func(a *adapter.Adapter) bool { return a.ActionClicked(index) })
}

func (s *Supervisor) SelectObject(index int) error {
	return s.command("object", func(a *adapter.Adapter) bool { return a.ObjectSelected(index) })
}

func (s *Supervisor) SubmitInput(text string) error {
	return s.command("input", func(a *adapter.Adapter) bool { return a.InputSubmitted(text) })
}

func (s *Supervisor) ExecCode(code string) error {
	return s.command("exec", func(a *adapter.Adapter) bool { return a.ExecuteCode(code) })
}

// AnswerDialog answers whatever question the engine is waiting on.
func (s *Supervisor) AnswerDialog(ans protocol.Answer) error {
	a := s.active()
	if a == nil {
		return errors.NotInitialized(errors.PhaseSupervisor, "game")
	}
	if !a.Answer(ans) {
		return errors.NotFound(errors.PhaseBridge, "pending question", "")
	}
	return nil
}

// AnswerRequest answers the question published with id. Answers to
// questions that already timed out or were superseded are rejected.
func (s *Supervisor) AnswerRequest(id string, ans protocol.Answer) error {
	a := s.active()
	if a == nil {
		return errors.NotInitialized(errors.PhaseSupervisor, "game")
	}
	if !a.AnswerID(id, ans) {
		return errors.NotFound(errors.PhaseBridge, "question", id)
	}
	return nil
}

func (s *Supervisor) tick() {
	if a := s.active(); a != nil {
		a.TickCounter()
	}
}

// startFanIn keeps the merged settings current and pushes user settings
// changes into the running adapter.
func (s *Supervisor) startFanIn() {
	ctx, cancel := context.WithCancel(context.Background())
	s.fanCancel = cancel
	s.fanDone = make(chan struct{})

	userCh, stopUser := s.user.Watch()
	uiCh, stopUI := s.uiConfig.Watch()

	go func() {
		defer close(s.fanDone)
		defer stopUser()
		defer stopUI()

		for {
			select {
			case <-ctx.Done():
				return
			case <-userCh:
				user := s.user.Load()
				if a := s.active(); a != nil {
					a.SetAnswerTimeout(s.timeoutFor(user))
				}
			case <-uiCh:
			}
			s.merged.Store(state.Merge(s.user.Load(), s.uiConfig.Load()))
		}
	}()
}
