package adapter

import (
	"context"
	"io"

	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/state"
)

// GameFile is a game world or saved state handed to the engine.
type GameFile struct {
	Data      io.Reader
	Name      string
	IsNewGame bool
}

// RawEngine is one interpreter variant. Every method is called on the
// engine thread only. Operations return false on failure; the reason is then
// available from LastError until the next engine call.
type RawEngine interface {
	Init(ctx context.Context) error
	Terminate(ctx context.Context)

	// Bind installs the callback receiver. It is called before Init.
	Bind(cb Callbacks)

	LoadGameWorld(ctx context.Context, f GameFile) bool
	OpenSavedGame(ctx context.Context, f GameFile) bool
	SaveGame(ctx context.Context, w io.Writer) bool
	RestartGame(ctx context.Context) bool

	SetSelectedAction(ctx context.Context, index int) bool
	ExecSelectedAction(ctx context.Context) bool
	SetSelectedObject(ctx context.Context, index int) bool
	SetInputText(ctx context.Context, text string)
	ExecUserInput(ctx context.Context) bool
	ExecString(ctx context.Context, code string) bool
	ExecCounter(ctx context.Context) bool

	MainDesc(ctx context.Context) string
	VarsDesc(ctx context.Context) string
	Actions(ctx context.Context) []state.Item
	Objects(ctx context.Context) []state.Item
	// NumVar reads element 0 of a numeric variable. found is false when the
	// variable does not exist.
	NumVar(ctx context.Context, name string) (value int64, found bool)

	// LastError describes the most recent failure, or nil when the engine
	// has nothing to report.
	LastError(ctx context.Context) *errors.ScriptError
}

// Callbacks are invoked by the engine, on the engine thread, while one of
// its operations is running. Methods returning a value block that thread
// until the value is known.
type Callbacks interface {
	OnRefresh(ctx context.Context, forced bool)
	OnShowImage(ctx context.Context, path string)
	OnShowMessage(ctx context.Context, text string)
	OnShowMenu(ctx context.Context, items []state.Item) int
	OnInputBox(ctx context.Context, prompt string) string
	OnPlayFile(ctx context.Context, path string, volume int)
	OnIsPlayingFile(ctx context.Context, path string) bool
	OnCloseFile(ctx context.Context, path string)
	OnOpenGame(ctx context.Context, path string, isNewGame bool)
	OnOpenGameStatus(ctx context.Context, path string)
	OnSaveGameStatus(ctx context.Context, path string)
	OnSetTimer(ctx context.Context, ms int)
	OnGetElapsedMs(ctx context.Context) int
	OnSleep(ctx context.Context, ms int)
	OnShowWindow(ctx context.Context, window int, show bool)
}
