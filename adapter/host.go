package adapter

import (
	"time"

	"github.com/wippyai/qsp-runtime/protocol"
	"github.com/wippyai/qsp-runtime/state"
)

// Host is what an adapter needs from its owner. All methods may be called
// from the engine thread and must not block on it.
type Host interface {
	Publish(r protocol.Request)
	SetGameState(s state.GameState)
	SetUIConfig(c state.UIConfig)
	UIConfig() state.UIConfig
	// DoWithCounterDisabled runs fn with the periodic counter cancelled and
	// reschedules it afterwards, even when fn panics.
	DoWithCounterDisabled(fn func())
	SetCounterInterval(d time.Duration)
}
