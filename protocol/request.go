// Package protocol defines the requests an engine publishes to the UI and the
// answers the UI sends back.
//
// Requests are values. Blocking requests carry the id of the bridge question
// that is waiting for them; answer them with the same id.
package protocol

import (
	"fmt"

	"github.com/wippyai/qsp-runtime/state"
)

// Request is an outbound event from the engine thread.
type Request interface {
	RequestID() string
	// Blocking reports whether the engine thread waits for an answer.
	Blocking() bool
	request()
}

type ShowMessage struct {
	ID   string
	Text string
}

type ShowPicture struct {
	ID   string
	Path string
}

type ShowError struct {
	ID      string
	Message string
}

// ShowMenu is answered with an IndexAnswer; -1 means nothing was chosen.
type ShowMenu struct {
	ID    string
	Items []state.Item
}

// ShowInput is answered with a TextAnswer.
type ShowInput struct {
	ID     string
	Prompt string
}

type PopupSaveRequested struct{ ID string }

type PopupLoadRequested struct{ ID string }

type WindowVisibilityChanged struct {
	ID      string
	Window  state.Window
	Visible bool
}

// PlayAudio asks for a file relative to the game directory to be played.
// Volume is 0..100.
type PlayAudio struct {
	ID     string
	Path   string
	Volume int
}

// StopAudio stops one file, or everything when All is set.
type StopAudio struct {
	ID   string
	Path string
	All  bool
}

// IsAudioPlaying is answered with a PlayingAnswer.
type IsAudioPlaying struct {
	ID   string
	Path string
}

// ResolveFileForRead is answered with a FileAnswer; an empty handle means
// the file could not be resolved.
type ResolveFileForRead struct {
	ID       string
	Path     string
	MimeType string
}

// ResolveFileForWrite is answered with a FileAnswer.
type ResolveFileForWrite struct {
	ID       string
	Path     string
	MimeType string
}

func (r ShowMessage) RequestID() string             { return r.ID }
func (r ShowPicture) RequestID() string             { return r.ID }
func (r ShowError) RequestID() string               { return r.ID }
func (r ShowMenu) RequestID() string                { return r.ID }
func (r ShowInput) RequestID() string               { return r.ID }
func (r PopupSaveRequested) RequestID() string      { return r.ID }
func (r PopupLoadRequested) RequestID() string      { return r.ID }
func (r WindowVisibilityChanged) RequestID() string { return r.ID }
func (r PlayAudio) RequestID() string               { return r.ID }
func (r StopAudio) RequestID() string               { return r.ID }
func (r IsAudioPlaying) RequestID() string          { return r.ID }
func (r ResolveFileForRead) RequestID() string      { return r.ID }
func (r ResolveFileForWrite) RequestID() string     { return r.ID }

func (ShowMessage) Blocking() bool             { return false }
func (ShowPicture) Blocking() bool             { return false }
func (ShowError) Blocking() bool               { return false }
func (ShowMenu) Blocking() bool                { return true }
func (ShowInput) Blocking() bool               { return true }
func (PopupSaveRequested) Blocking() bool      { return false }
func (PopupLoadRequested) Blocking() bool      { return false }
func (WindowVisibilityChanged) Blocking() bool { return false }
func (PlayAudio) Blocking() bool               { return false }
func (StopAudio) Blocking() bool               { return false }
func (IsAudioPlaying) Blocking() bool          { return true }
func (ResolveFileForRead) Blocking() bool      { return true }
func (ResolveFileForWrite) Blocking() bool     { return true }

func (ShowMessage) request()             {}
func (ShowPicture) request()             {}
func (ShowError) request()               {}
func (ShowMenu) request()                {}
func (ShowInput) request()               {}
func (PopupSaveRequested) request()      {}
func (PopupLoadRequested) request()      {}
func (WindowVisibilityChanged) request() {}
func (PlayAudio) request()               {}
func (StopAudio) request()               {}
func (IsAudioPlaying) request()          {}
func (ResolveFileForRead) request()      {}
func (ResolveFileForWrite) request()     {}

// Describe renders a request for logs.
func Describe(r Request) string {
	switch v := r.(type) {
	case ShowMessage:
		return fmt.Sprintf("show_message(%d chars)", len(v.Text))
	case ShowPicture:
		return "show_picture(" + v.Path + ")"
	case ShowError:
		return "show_error"
	case ShowMenu:
		return fmt.Sprintf("show_menu(%d items)", len(v.Items))
	case ShowInput:
		return "show_input"
	case PopupSaveRequested:
		return "popup_save"
	case PopupLoadRequested:
		return "popup_load"
	case WindowVisibilityChanged:
		return fmt.Sprintf("window(%s, %t)", v.Window, v.Visible)
	case PlayAudio:
		return fmt.Sprintf("play_audio(%s, %d)", v.Path, v.Volume)
	case StopAudio:
		if v.All {
			return "stop_audio(all)"
		}
		return "stop_audio(" + v.Path + ")"
	case IsAudioPlaying:
		return "is_audio_playing(" + v.Path + ")"
	case ResolveFileForRead:
		return "resolve_read(" + v.Path + ")"
	case ResolveFileForWrite:
		return "resolve_write(" + v.Path + ")"
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T", r)
	}
}
