package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindLoadFailure,
				Path:   []string{"games", "demo.qsp"},
				Detail: "engine rejected game world",
			},
			contains: []string{"[load]", "load_failure", "games/demo.qsp", "engine rejected"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseBridge,
				Kind:  KindTimeout,
			},
			contains: []string{"[bridge]", "timeout"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseResolve,
				Kind:   KindResolution,
				Detail: "cannot resolve file",
				Cause:  errors.New("permission denied"),
			},
			contains: []string{"[resolve]", "resolution", "cannot resolve", "caused by", "permission denied"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseBridge,
		Kind:  KindCancelled,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseBridge, Kind: KindCancelled}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseThread, Kind: KindCancelled}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseBridge, Kind: KindTimeout}) {
		t.Error("Is should not match different kind")
	}

	wrapped := fmt.Errorf("ask: %w", err)
	if !errors.Is(wrapped, &Error{Phase: PhaseBridge, Kind: KindCancelled}) {
		t.Error("errors.Is should match through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseEngine, KindScript).
		Path("start", "intro").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "number", "string").
		Build()

	if err.Phase != PhaseEngine {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseEngine)
	}
	if err.Kind != KindScript {
		t.Errorf("Kind = %v, want %v", err.Kind, KindScript)
	}
	if len(err.Path) != 2 || err.Path[0] != "start" || err.Path[1] != "intro" {
		t.Errorf("Path = %v, want [start intro]", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected number, got string" {
		t.Errorf("Detail = %v, want 'expected number, got string'", err.Detail)
	}
}

func TestIsKind(t *testing.T) {
	inner := Timeout(PhaseBridge, "menu", time.Second)
	outer := Wrap(PhaseCallback, KindCancelled, inner, "show menu")

	if !IsKind(outer, KindCancelled) {
		t.Error("IsKind should match outer kind")
	}
	if !IsKind(outer, KindTimeout) {
		t.Error("IsKind should match kind in cause chain")
	}
	if IsKind(outer, KindResolution) {
		t.Error("IsKind should not match absent kind")
	}
	if IsKind(errors.New("plain"), KindTimeout) {
		t.Error("IsKind should not match plain errors")
	}
	if IsKind(nil, KindTimeout) {
		t.Error("IsKind(nil) should be false")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Timeout", func(t *testing.T) {
		err := Timeout(PhaseBridge, "input box", 30*time.Second)
		if err.Kind != KindTimeout {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTimeout)
		}
		if !strings.Contains(err.Detail, "30s") {
			t.Errorf("Detail = %v, should contain duration", err.Detail)
		}
	})

	t.Run("Resolution", func(t *testing.T) {
		err := Resolution("music/theme.ogg", errors.New("missing"))
		if err.Kind != KindResolution || err.Phase != PhaseResolve {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if len(err.Path) != 1 || err.Path[0] != "music/theme.ogg" {
			t.Errorf("Path = %v", err.Path)
		}
	})

	t.Run("MissingExport", func(t *testing.T) {
		err := MissingExport("qsp", "qsp_init")
		if err.Kind != KindMissingExport {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMissingExport)
		}
		if !strings.Contains(err.Error(), "qsp_init") {
			t.Errorf("error should name the export: %v", err)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseCallback, "read string", 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != uint32(10) {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("NotInitialized", func(t *testing.T) {
		err := NotInitialized(PhaseSupervisor, "active engine")
		if err.Kind != KindNotInitialized {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotInitialized)
		}
	})
}

func TestScriptError(t *testing.T) {
	se := &ScriptError{
		Location:    "start",
		Action:      2,
		Line:        14,
		Code:        107,
		Description: "Unknown action!",
	}

	diag := se.Diagnostic()
	for _, want := range []string{
		"Location: start",
		"Action: 2",
		"Line: 14",
		"Error number: 107",
		"Description: Unknown action!",
	} {
		if !strings.Contains(diag, want) {
			t.Errorf("diagnostic %q missing %q", diag, want)
		}
	}

	if !errors.Is(se, &Error{Kind: KindScript}) {
		t.Error("ScriptError should match KindScript")
	}
	var target *ScriptError
	if !errors.As(fmt.Errorf("call: %w", se), &target) || target.Code != 107 {
		t.Error("errors.As should recover the ScriptError")
	}

	wrapped := Script("cannot read game file", errors.New("eof"))
	if wrapped.Description != "cannot read game file: eof" {
		t.Errorf("Description = %q", wrapped.Description)
	}
}
