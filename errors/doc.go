// Package errors provides structured error types for the qsp runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a resource path, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindLoadFailure).
//		Path("games/demo.qsp").
//		Detail("engine rejected game world").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Timeout(errors.PhaseBridge, "input box", 30*time.Second)
//	err := errors.Resolution("music/theme.ogg", cause)
//
// ScriptError is the engine's own diagnostic (location, action, line, code,
// description); Diagnostic renders the text published with a ShowError request.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
