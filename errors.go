package scripting

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is a caller error: nil script, blank code, nil registry or configurer.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEngineNotFound no engine resolves for the declared MIME type
	ErrEngineNotFound = errors.New("script engine not found")

	// ErrCompilationFailed the engine rejected the source during compilation
	ErrCompilationFailed = errors.New("script compilation failed")

	// ErrEvaluationFailed the engine failed while evaluating or invoking
	ErrEvaluationFailed = errors.New("script evaluation failed")

	// ErrInitializationFailed the engine registry could not be constructed
	ErrInitializationFailed = errors.New("script engine registry initialization failed")

	// ErrFunctionNotFound the named function is not declared by the evaluated script
	ErrFunctionNotFound = errors.New("script function not found")

	// ErrNotInvocable the resolved engine cannot call functions by name
	ErrNotInvocable = errors.New("script engine is not invocable")

	ErrBlankCode = errors.New("script code must not be blank")

	ErrPoolClosed = errors.New("invocable script pool closed")

	ErrScriptClosed = errors.New("invocable script closed")
)

// ScriptError reports a failure tied to a specific script. It matches both its Kind
// and its cause with errors.Is.
type ScriptError struct {
	Kind   error
	Script *Script
	Err    error
}

func (e *ScriptError) Error() string {
	name := "<nil>"
	if e.Script != nil {
		name = e.Script.Name()
		if name == "" {
			name = e.Script.ID()
		}
	}
	if e.Err == nil {
		return fmt.Sprintf("%v: script %q", e.Kind, name)
	}
	return fmt.Sprintf("%v: script %q: %v", e.Kind, name, e.Err)
}

func (e *ScriptError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newScriptError(kind error, script *Script, err error) *ScriptError {
	return &ScriptError{Kind: kind, Script: script, Err: err}
}
