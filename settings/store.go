package settings

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/state"
)

const DefaultDebounce = 250 * time.Millisecond

// Store keeps user settings in a YAML file and publishes them through a
// state.Value. Missing keys take their defaults.
type Store struct {
	value    *state.Value[state.Settings]
	path     string
	debounce time.Duration
	mu       sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce sets how long Watch waits after the last file event before
// reloading.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// Open loads path. A missing file yields defaults and is not created until
// Save.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: filepath.Clean(path), debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(s)
	}
	st, err := s.read()
	if err != nil {
		return nil, err
	}
	s.value = state.NewValue(st)
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Value is the live settings cell; Save and reloads store into it.
func (s *Store) Value() *state.Value[state.Settings] { return s.value }

// Decode parses YAML settings over the defaults.
func Decode(data []byte) (state.Settings, error) {
	st := state.DefaultSettings()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &st); err != nil {
			return state.Settings{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse settings")
		}
	}
	return normalize(st), nil
}

func normalize(st state.Settings) state.Settings {
	def := state.DefaultSettings()
	if st.FontSize <= 0 {
		st.FontSize = def.FontSize
	}
	if st.AnswerTimeout <= 0 {
		st.AnswerTimeout = def.AnswerTimeout
	}
	if st.CounterInterval <= 0 {
		st.CounterInterval = def.CounterInterval
	}
	if !st.Engine.Valid() {
		st.Engine = def.Engine
	}
	return st
}

func (s *Store) read() (state.Settings, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return state.DefaultSettings(), nil
	}
	if err != nil {
		return state.Settings{}, errors.New(errors.PhaseConfig, errors.KindLoadFailure).
			Path(s.path).Detail("read settings").Cause(err).Build()
	}
	return Decode(data)
}

// Reload re-reads the file. On error the current value is kept.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		return err
	}
	if st != s.value.Load() {
		s.value.Store(st)
	}
	return nil
}

// Save writes st to the file through a temporary file and rename, then
// publishes it.
func (s *Store) Save(st state.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(normalize(st))
}

// Update applies fn to the current settings and saves the result.
func (s *Store) Update(fn func(state.Settings) state.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(normalize(fn(s.value.Load())))
}

func (s *Store) saveLocked(st state.Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "encode settings")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindLoadFailure, err, "create settings directory")
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindLoadFailure, err, "create temp settings")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(errors.PhaseConfig, errors.KindLoadFailure, err, "write settings")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(errors.PhaseConfig, errors.KindLoadFailure, err, "write settings")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(errors.PhaseConfig, errors.KindLoadFailure, err, "replace settings")
	}

	s.value.Store(st)
	return nil
}

// Watch reloads the file whenever it changes on disk until ctx is done. The
// parent directory is watched so editors that replace the file are seen.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindNotInitialized, err, "create settings watcher")
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "watch settings directory")
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != s.path {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(s.debounce, func() {
					if err := s.Reload(); err != nil {
						Logger().Warn("settings reload failed", zap.String("path", s.path), zap.Error(err))
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				Logger().Warn("settings watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
