package supervisor

import (
	"time"

	"go.uber.org/zap"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/adapter"
	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

// host is the supervisor side of one adapter. Output from an adapter that is
// no longer the running one is dropped.
type host struct {
	s *Supervisor
	a *adapter.Adapter
}

var _ adapter.Host = (*host)(nil)

func (h *host) live() bool { return h.s.isActive(h.a) }

func (h *host) SetGameState(g state.GameState) {
	if h.live() {
		h.s.gameState.Store(g)
	}
}

func (h *host) SetUIConfig(c state.UIConfig) {
	if h.live() {
		h.s.uiConfig.Store(c)
	}
}

func (h *host) UIConfig() state.UIConfig { return h.s.uiConfig.Load() }

func (h *host) DoWithCounterDisabled(fn func()) { h.s.counter.withDisabled(fn) }

func (h *host) SetCounterInterval(d time.Duration) {
	if h.live() {
		h.s.counter.setInterval(d)
	}
}

// Publish routes a request. It runs on the engine thread; questions are
// answered from a separate goroutine.
func (h *host) Publish(r protocol.Request) {
	if !h.live() {
		h.s.log.Debug("request from inactive engine dropped",
			zap.String("engine", h.a.Name()),
			zap.String("request", protocol.Describe(r)))
		return
	}

	switch r := r.(type) {
	case protocol.PlayAudio:
		h.playAudio(r)
	case protocol.StopAudio:
		h.stopAudio(r)
	case protocol.IsAudioPlaying:
		go h.answer(r.ID, protocol.PlayingAnswer(h.isPlaying(r.Path)))
	case protocol.ResolveFileForRead:
		go h.answer(r.ID, h.resolve(r.Path, qspruntime.AccessRead, r.MimeType))
	case protocol.ResolveFileForWrite:
		go h.answer(r.ID, h.resolve(r.Path, qspruntime.AccessWrite, r.MimeType))
	case protocol.WindowVisibilityChanged:
		h.s.windows.Emit(r)
	default:
		if h.s.requests.Emit(r) == 0 && r.Blocking() {
			h.s.log.Debug("blocking request has no listener", zap.String("request", protocol.Describe(r)))
		}
	}
}

func (h *host) answer(id string, ans protocol.Answer) {
	if !h.a.AnswerID(id, ans) {
		h.s.log.Debug("answer dropped", zap.String("id", id))
	}
}

func (h *host) gameDir() state.Handle { return h.s.gameState.Load().Dir }

func (h *host) resolve(path string, access qspruntime.Access, mimeType string) protocol.Answer {
	f, err := h.s.storage.Resolve(h.gameDir(), path, access, mimeType)
	if err != nil {
		h.s.log.Debug("resolve failed",
			zap.String("path", path),
			zap.Stringer("access", access),
			zap.Error(err))
		return protocol.Answer{}
	}
	return protocol.FileAnswer(f)
}

func (h *host) audioHandle(path string) (state.Handle, bool) {
	if h.s.audio == nil {
		return "", false
	}
	f, err := h.s.storage.Resolve(h.gameDir(), path, qspruntime.AccessRead, "")
	if err != nil {
		h.s.log.Debug("audio file not resolved", zap.String("path", path), zap.Error(err))
		return "", false
	}
	return f, true
}

func (h *host) playAudio(r protocol.PlayAudio) {
	f, ok := h.audioHandle(r.Path)
	if !ok {
		return
	}
	if err := h.s.audio.Play(f, r.Volume); err != nil {
		h.s.log.Warn("audio play failed", zap.String("file", f.String()), zap.Error(err))
	}
}

func (h *host) stopAudio(r protocol.StopAudio) {
	if h.s.audio == nil {
		return
	}
	if r.All {
		h.s.audio.StopAll()
		return
	}
	if f, ok := h.audioHandle(r.Path); ok {
		h.s.audio.Stop(f)
	}
}

func (h *host) isPlaying(path string) bool {
	f, ok := h.audioHandle(path)
	return ok && h.s.audio.IsPlaying(f)
}
