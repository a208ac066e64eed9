package state

import (
	"fmt"
	"strings"
)

// Handle is an opaque, permission-checked reference to a file-like resource.
// The zero value means "no handle".
type Handle string

func (h Handle) String() string { return string(h) }

func (h Handle) IsEmpty() bool { return h == "" }

// Item is one line of an action, object or menu list.
type Item struct {
	Text  string
	Image string
}

// GameRef identifies a game: what to load and where its files live.
type GameRef struct {
	Title string
	Dir   Handle
	File  Handle
	ID    int64
}

// GameState is an immutable snapshot of what the engine last displayed.
// Producers build a new value for every change; slices are never modified
// after the snapshot is published.
type GameState struct {
	Title    string
	Dir      Handle
	File     Handle
	MainText string
	VarsText string
	Actions  []Item
	Objects  []Item
	ID       int64
	Running  bool
}

// Ref returns the identity part of the snapshot.
func (s GameState) Ref() GameRef {
	return GameRef{ID: s.ID, Title: s.Title, Dir: s.Dir, File: s.File}
}

// WithIdentity returns a copy carrying ref's identity. Running is cleared;
// the caller sets it once the game actually started.
func (s GameState) WithIdentity(ref GameRef) GameState {
	s.ID = ref.ID
	s.Title = ref.Title
	s.Dir = ref.Dir
	s.File = ref.File
	s.Running = false
	return s
}

// WithContent returns a copy with new display content.
func (s GameState) WithContent(main, vars string, actions, objects []Item) GameState {
	s.MainText = main
	s.VarsText = vars
	s.Actions = actions
	s.Objects = objects
	return s
}

// WithRunning returns a copy with the running flag set.
func (s GameState) WithRunning(running bool) GameState {
	s.Running = running
	return s
}

// UIConfig is interface styling the game itself requested through its
// USEHTML, FSIZE, BCOLOR, FCOLOR and LCOLOR variables.
type UIConfig struct {
	FontSize  int
	BackColor Color
	FontColor Color
	LinkColor Color
	UseHTML   bool
}

// Color is a 0xAARRGGBB colour. Zero means unset.
type Color uint32

// Window is a panel whose visibility the engine controls.
type Window int

const (
	WindowActions Window = iota
	WindowObjects
	WindowVars
	WindowInput
)

var windowNames = [...]string{"actions", "objects", "vars", "input"}

func (w Window) String() string {
	if w >= 0 && int(w) < len(windowNames) {
		return windowNames[w]
	}
	return fmt.Sprintf("window(%d)", int(w))
}

// WindowFromIndex maps an engine window index to a Window.
func WindowFromIndex(i int) (Window, bool) {
	if i < 0 || i >= len(windowNames) {
		return 0, false
	}
	return Window(i), true
}

// Selector picks one of the three engine variants. It is read from settings
// when a game starts and stays fixed while that game runs.
type Selector int

const (
	SelectorByte Selector = iota
	SelectorSonnix
	SelectorSeedharta
)

// Selectors lists every variant in a stable order.
var Selectors = []Selector{SelectorByte, SelectorSonnix, SelectorSeedharta}

var selectorNames = [...]string{"byte", "sonnix", "seedharta"}

func (s Selector) String() string {
	if s.Valid() {
		return selectorNames[s]
	}
	return fmt.Sprintf("selector(%d)", int(s))
}

func (s Selector) Valid() bool {
	return s >= 0 && int(s) < len(selectorNames)
}

// ParseSelector accepts a variant name, case-insensitively.
func ParseSelector(name string) (Selector, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range selectorNames {
		if n == name {
			return Selector(i), nil
		}
	}
	return 0, fmt.Errorf("unknown engine %q (want one of %s)", name, strings.Join(selectorNames[:], ", "))
}

func (s Selector) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid engine selector %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Selector) UnmarshalText(text []byte) error {
	v, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
