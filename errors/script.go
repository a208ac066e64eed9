package errors

import (
	"fmt"
	"strings"
)

// ScriptError is the engine's own report of a failed call, read from the
// engine right after the failing operation.
type ScriptError struct {
	Location    string
	Description string
	Action      int
	Line        int
	Code        int
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("[engine] %s: error %d at %s (action %d, line %d): %s",
			KindScript, e.Code, e.Location, e.Action, e.Line, e.Description)
	}
	return fmt.Sprintf("[engine] %s: error %d: %s", KindScript, e.Code, e.Description)
}

// Is matches any *ScriptError, or an *Error of kind KindScript.
func (e *ScriptError) Is(target error) bool {
	switch t := target.(type) {
	case *ScriptError:
		return true
	case *Error:
		return t.Kind == KindScript
	}
	return false
}

// Diagnostic renders the multi-line text shown to the player.
func (e *ScriptError) Diagnostic() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s\n", e.Location)
	fmt.Fprintf(&b, "Action: %d\n", e.Action)
	fmt.Fprintf(&b, "Line: %d\n", e.Line)
	fmt.Fprintf(&b, "Error number: %d\n", e.Code)
	fmt.Fprintf(&b, "Description: %s", e.Description)
	return b.String()
}

// Script wraps a non-engine failure so it can travel the same reporting path
// as an engine diagnostic.
func Script(description string, cause error) *ScriptError {
	if cause != nil {
		description = fmt.Sprintf("%s: %v", description, cause)
	}
	return &ScriptError{Description: description}
}
