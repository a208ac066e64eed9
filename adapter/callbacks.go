package adapter

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

const saveMimeType = "application/octet-stream"

// ask publishes a blocking request and waits for its answer on the engine
// thread. Once the adapter is stopping no new question is asked.
func (a *Adapter) ask(ctx context.Context, build func(id string) protocol.Request) (protocol.Answer, error) {
	if a.stopping.Load() {
		return protocol.Answer{}, errors.Closed(errors.PhaseCallback, "adapter "+a.name)
	}
	ans, err := a.bridge.Ask(ctx, a.answerTimeout(), func(id string) {
		a.host.Publish(build(id))
	})
	if err != nil {
		a.log.Debug("question unanswered, using default", zap.Error(err))
	}
	return ans, err
}

func (a *Adapter) OnRefresh(ctx context.Context, forced bool) {
	actions := a.rewriteImages(a.raw.Actions(ctx), false)
	objects := a.rewriteImages(a.raw.Objects(ctx), true)

	a.game = a.game.WithContent(a.raw.MainDesc(ctx), a.raw.VarsDesc(ctx), actions, objects)
	a.host.SetGameState(a.game)
	a.host.SetUIConfig(a.readUIConfig(ctx, a.host.UIConfig()))
}

// readUIConfig re-reads the styling variables. A variable that does not
// exist keeps its previous value.
func (a *Adapter) readUIConfig(ctx context.Context, prev state.UIConfig) state.UIConfig {
	cfg := prev
	if v, ok := a.raw.NumVar(ctx, "USEHTML"); ok {
		cfg.UseHTML = v != 0
	}
	if v, ok := a.raw.NumVar(ctx, "FSIZE"); ok {
		cfg.FontSize = int(v)
	}
	if v, ok := a.raw.NumVar(ctx, "BCOLOR"); ok {
		cfg.BackColor = state.Color(v)
	}
	if v, ok := a.raw.NumVar(ctx, "FCOLOR"); ok {
		cfg.FontColor = state.Color(v)
	}
	if v, ok := a.raw.NumVar(ctx, "LCOLOR"); ok {
		cfg.LinkColor = state.Color(v)
	}
	return cfg
}

func (a *Adapter) OnShowImage(ctx context.Context, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	a.host.Publish(protocol.ShowPicture{ID: newID(), Path: a.resolveImage(path)})
}

func (a *Adapter) OnShowMessage(ctx context.Context, text string) {
	a.host.Publish(protocol.ShowMessage{ID: newID(), Text: text})
}

func (a *Adapter) OnShowMenu(ctx context.Context, items []state.Item) int {
	ans, err := a.ask(ctx, func(id string) protocol.Request {
		return protocol.ShowMenu{ID: id, Items: items}
	})
	if err != nil {
		return -1
	}
	i, ok := ans.Index()
	if !ok || i < 0 || i >= len(items) {
		return -1
	}
	return i
}

func (a *Adapter) OnInputBox(ctx context.Context, prompt string) string {
	ans, err := a.ask(ctx, func(id string) protocol.Request {
		return protocol.ShowInput{ID: id, Prompt: prompt}
	})
	if err != nil {
		return ""
	}
	text, _ := ans.Text()
	return text
}

func (a *Adapter) OnPlayFile(ctx context.Context, path string, volume int) {
	if strings.TrimSpace(path) == "" {
		return
	}
	a.host.Publish(protocol.PlayAudio{ID: newID(), Path: normalizePath(path), Volume: volume})
}

func (a *Adapter) OnIsPlayingFile(ctx context.Context, path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	ans, err := a.ask(ctx, func(id string) protocol.Request {
		return protocol.IsAudioPlaying{ID: id, Path: normalizePath(path)}
	})
	if err != nil {
		return false
	}
	playing, _ := ans.Playing()
	return playing
}

func (a *Adapter) OnCloseFile(ctx context.Context, path string) {
	if strings.TrimSpace(path) == "" {
		a.host.Publish(protocol.StopAudio{ID: newID(), All: true})
		return
	}
	a.host.Publish(protocol.StopAudio{ID: newID(), Path: normalizePath(path)})
}

// OnOpenGame loads another world file from the game directory, either as a
// new game or merged into the current one.
func (a *Adapter) OnOpenGame(ctx context.Context, path string, isNewGame bool) {
	if strings.TrimSpace(path) == "" {
		return
	}
	h, err := a.storage.Resolve(a.game.Dir, normalizePath(path), qspruntime.AccessRead, "")
	if err != nil {
		a.showError(err.Error())
		return
	}
	f, err := a.storage.Open(h)
	if err != nil {
		a.showError(errors.LoadFailure(errors.PhaseLoad, "cannot open game file", err).Error())
		return
	}
	defer f.Close()
	if !a.raw.LoadGameWorld(ctx, GameFile{Data: f, Name: fileName(h), IsNewGame: isNewGame}) {
		a.reportLastError(ctx, "load_game_world")
	}
}

func (a *Adapter) OnOpenGameStatus(ctx context.Context, path string) {
	if path == "" {
		a.host.Publish(protocol.PopupLoadRequested{ID: newID()})
		return
	}
	h := a.resolveFile(ctx, func(id string) protocol.Request {
		return protocol.ResolveFileForRead{ID: id, Path: normalizePath(path)}
	})
	if h.IsEmpty() {
		a.showError("Save file not found")
		return
	}
	a.host.DoWithCounterDisabled(func() { a.loadState(ctx, h) })
}

func (a *Adapter) OnSaveGameStatus(ctx context.Context, path string) {
	if path == "" {
		a.host.Publish(protocol.PopupSaveRequested{ID: newID()})
		return
	}
	h := a.resolveFile(ctx, func(id string) protocol.Request {
		return protocol.ResolveFileForWrite{ID: id, Path: normalizePath(path), MimeType: saveMimeType}
	})
	if h.IsEmpty() {
		a.showError("Cannot access game directory")
		return
	}
	a.saveState(ctx, h)
}

func (a *Adapter) resolveFile(ctx context.Context, build func(id string) protocol.Request) state.Handle {
	ans, err := a.ask(ctx, build)
	if err != nil {
		return ""
	}
	h, _ := ans.File()
	return h
}

func (a *Adapter) OnSetTimer(ctx context.Context, ms int) {
	a.host.SetCounterInterval(time.Duration(ms) * time.Millisecond)
}

// OnGetElapsedMs returns the milliseconds since the previous call; the
// first call after a game start measures from the start.
func (a *Adapter) OnGetElapsedMs(ctx context.Context) int {
	now := time.Now()
	if a.lastMs.IsZero() {
		a.lastMs = a.startTime
	}
	if a.lastMs.IsZero() {
		a.lastMs = now
	}
	dt := now.Sub(a.lastMs)
	a.lastMs = now
	return int(dt.Milliseconds())
}

// OnSleep pauses the engine thread. Stopping the adapter wakes it early.
func (a *Adapter) OnSleep(ctx context.Context, ms int) {
	if ms <= 0 {
		return
	}
	a.mu.Lock()
	quit := a.quit
	a.mu.Unlock()

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-quit:
	case <-ctx.Done():
	}
}

func (a *Adapter) OnShowWindow(ctx context.Context, window int, show bool) {
	w, ok := state.WindowFromIndex(window)
	if !ok {
		a.log.Warn("unknown window", zap.Int("window", window))
		return
	}
	a.host.Publish(protocol.WindowVisibilityChanged{ID: newID(), Window: w, Visible: show})
}
