package audio

import (
	"io"
	"math"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
	"go.uber.org/zap"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/state"
)

const sampleRate = beep.SampleRate(44100)

// Output receives the player's mixer once, on first playback.
type Output func(s beep.Streamer) error

// SpeakerOutput plays through the default audio device.
func SpeakerOutput(s beep.Streamer) error {
	if err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(s)
	return nil
}

type speakerLock struct{}

func (speakerLock) Lock()   { speaker.Lock() }
func (speakerLock) Unlock() { speaker.Unlock() }

// Option configures a Player.
type Option func(*Player)

// WithOutput replaces the speaker. mixLock must guard the goroutine that
// pulls samples from the streamer passed to out.
func WithOutput(out Output, mixLock sync.Locker) Option {
	return func(p *Player) {
		p.output = out
		p.mixLock = mixLock
	}
}

// Silent tracks playback state without producing sound. Tracks finish only
// when stopped.
func Silent() Option {
	return func(p *Player) {
		p.output = nil
		p.mixLock = &sync.Mutex{}
	}
}

type track struct {
	ctrl   *beep.Ctrl
	volume *effects.Volume
	closer io.Closer
	done   atomic.Bool
}

// Player implements qspruntime.AudioPlayer with beep. Files are read through
// Storage; WAV is decoded, other formats are rejected.
type Player struct {
	storage qspruntime.Storage
	output  Output
	mixLock sync.Locker
	mixer   *beep.Mixer
	tracks  map[state.Handle]*track
	mu      sync.Mutex
	started bool
}

var _ qspruntime.AudioPlayer = (*Player)(nil)

// NewPlayer creates a player that outputs to the speaker unless an option
// says otherwise.
func NewPlayer(storage qspruntime.Storage, opts ...Option) *Player {
	p := &Player{
		storage: storage,
		output:  SpeakerOutput,
		mixLock: speakerLock{},
		mixer:   &beep.Mixer{},
		tracks:  make(map[state.Handle]*track),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mixer exposes the streamer fed to the output.
func (p *Player) Mixer() beep.Streamer { return p.mixer }

// Play starts h at volume percent. A handle that is still playing only has
// its volume changed.
func (p *Player) Play(h state.Handle, volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.tracks[h]; ok && !t.done.Load() {
		p.mixLock.Lock()
		setVolume(t.volume, volume)
		p.mixLock.Unlock()
		return nil
	}

	if err := p.startLocked(); err != nil {
		return err
	}

	t, err := p.open(h)
	if err != nil {
		return err
	}
	setVolume(t.volume, volume)

	p.mixLock.Lock()
	if old, ok := p.tracks[h]; ok {
		old.stop()
	}
	p.tracks[h] = t
	p.mixer.Add(t.ctrl)
	p.mixLock.Unlock()

	Logger().Debug("audio started", zap.String("file", h.String()), zap.Int("volume", volume))
	return nil
}

func (p *Player) startLocked() error {
	if p.started || p.output == nil {
		return nil
	}
	if err := p.output(p.mixer); err != nil {
		return errors.Wrap(errors.PhaseAudio, errors.KindNotInitialized, err, "open audio output")
	}
	p.started = true
	return nil
}

func (p *Player) open(h state.Handle) (*track, error) {
	if ext := strings.ToLower(path.Ext(h.String())); ext != ".wav" {
		return nil, errors.New(errors.PhaseAudio, errors.KindInvalidData).
			Path(h.String()).Detail("unsupported audio format %q", ext).Build()
	}

	rc, err := p.storage.Open(h)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseAudio, errors.KindNotFound, err, "open "+h.String())
	}
	stream, format, err := wav.Decode(rc)
	if err != nil {
		_ = rc.Close()
		return nil, errors.Wrap(errors.PhaseAudio, errors.KindInvalidData, err, "decode "+h.String())
	}

	t := &track{closer: stream}
	var src beep.Streamer = stream
	if format.SampleRate != sampleRate {
		src = beep.Resample(4, format.SampleRate, sampleRate, src)
	}
	t.volume = &effects.Volume{Streamer: src, Base: 2}
	t.ctrl = &beep.Ctrl{Streamer: beep.Seq(t.volume, beep.Callback(func() {
		t.done.Store(true)
	}))}
	return t, nil
}

// setVolume maps a 0-100 percentage onto a base-2 gain.
func setVolume(v *effects.Volume, percent int) {
	switch {
	case percent <= 0:
		v.Silent = true
		v.Volume = 0
	case percent >= 100:
		v.Silent = false
		v.Volume = 0
	default:
		v.Silent = false
		v.Volume = math.Log2(float64(percent) / 100)
	}
}

func (t *track) stop() {
	t.ctrl.Streamer = nil
	t.done.Store(true)
	if err := t.closer.Close(); err != nil {
		Logger().Debug("audio close failed", zap.Error(err))
	}
}

// Stop ends playback of h.
func (p *Player) Stop(h state.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tracks[h]
	if !ok {
		return
	}
	delete(p.tracks, h)
	p.mixLock.Lock()
	t.stop()
	p.mixLock.Unlock()
}

// StopAll ends every track.
func (p *Player) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.mixLock.Lock()
	for h, t := range p.tracks {
		t.stop()
		delete(p.tracks, h)
	}
	p.mixer.Clear()
	p.mixLock.Unlock()
}

// IsPlaying reports whether h was started and has not finished or been
// stopped.
func (p *Player) IsPlaying(h state.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tracks[h]
	return ok && !t.done.Load()
}
