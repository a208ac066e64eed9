package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/qsp-runtime/adapter"
	"github.com/wippyai/qsp-runtime/audio"
	"github.com/wippyai/qsp-runtime/engine"
	"github.com/wippyai/qsp-runtime/native"
	"github.com/wippyai/qsp-runtime/resource"
	"github.com/wippyai/qsp-runtime/settings"
	"github.com/wippyai/qsp-runtime/state"
	"github.com/wippyai/qsp-runtime/supervisor"
)

const shutdownTimeout = 5 * time.Second

// newLogger builds a file logger so the terminal UI stays clean. Without a
// path nothing is logged.
func newLogger(opts *options) (*zap.Logger, error) {
	if opts.logPath == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	if opts.debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{opts.logPath}
	cfg.ErrorOutputPaths = []string{opts.logPath}
	return cfg.Build()
}

func setLoggers(log *zap.Logger) {
	engine.SetLogger(log.Named("engine"))
	adapter.SetLogger(log.Named("adapter"))
	native.SetLogger(log.Named("native"))
	settings.SetLogger(log.Named("settings"))
	audio.SetLogger(log.Named("audio"))
	supervisor.SetLogger(log.Named("supervisor"))
}

// session is one running game and the collaborators behind it.
type session struct {
	sup     *supervisor.Supervisor
	storage *resource.LocalStorage
	ref     state.GameRef
}

func gameRef(path string) (state.GameRef, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return state.GameRef{}, "", err
	}
	dir := filepath.Dir(abs)
	title := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	return state.GameRef{
		ID:    1,
		Title: title,
		Dir:   resource.HandleFor(dir),
		File:  resource.HandleFor(abs),
	}, dir, nil
}

func play(ctx context.Context, opts *options, gamePath string, plain bool, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log, err := newLogger(opts)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = log.Sync() }()
	setLoggers(log)

	store, err := settings.Open(opts.settingsPath)
	if err != nil {
		return err
	}
	if err := store.Watch(ctx); err != nil {
		log.Warn("settings are not watched", zap.Error(err))
	}
	if opts.engine != "" {
		sel, err := state.ParseSelector(opts.engine)
		if err != nil {
			return err
		}
		store.Value().Update(func(s state.Settings) state.Settings {
			s.Engine = sel
			return s
		})
	}

	modules, err := native.LoadModules(opts.enginesDir)
	if err != nil {
		return err
	}
	engines := native.Engines(modules, native.Config{MemoryLimitPages: opts.memoryPages})
	if len(engines) == 0 {
		return fmt.Errorf("no engine modules in %s", opts.enginesDir)
	}

	ref, dir, err := gameRef(gamePath)
	if err != nil {
		return err
	}
	storage := resource.NewLocalStorage(dir)

	var playerOpts []audio.Option
	if opts.noAudio {
		playerOpts = append(playerOpts, audio.Silent())
	}

	sup, err := supervisor.New(supervisor.Config{
		Storage:  storage,
		Audio:    audio.NewPlayer(storage, playerOpts...),
		Settings: store.Value(),
		Engines:  engines,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := sup.Stop(stopCtx); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	s := &session{sup: sup, storage: storage, ref: ref}
	if err := sup.StartGame(ctx, ref); err != nil {
		return err
	}
	if plain {
		return runPlain(ctx, s, in, out)
	}
	return runInteractive(ctx, s)
}

// saveHandle resolves a save file name in the game directory.
func (s *session) saveHandle(name string, write bool) (state.Handle, error) {
	access := resourceAccess(write)
	return s.storage.Resolve(s.ref.Dir, strings.TrimSpace(name), access, "application/octet-stream")
}
