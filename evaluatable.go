package scripting

import (
	"context"
	"fmt"
)

// Mode tells which execution strategy an EvaluatableScript uses.
type Mode int

const (
	// ModeCompiled evaluations reuse a CompiledForm.
	ModeCompiled Mode = iota + 1
	// ModeInterpreted evaluations re-submit the source text to the engine.
	ModeInterpreted
)

func (m Mode) String() string {
	switch m {
	case ModeCompiled:
		return "compiled"
	case ModeInterpreted:
		return "interpreted"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// EvaluatableScript is a script prepared for repeated evaluation. The strategy is
// chosen once by Provider.PrepareEvaluatableScript and never changes.
type EvaluatableScript interface {
	// Script returns the prepared script
	Script() *Script
	// Engine returns the engine evaluations run on
	Engine() Engine
	// Mode returns the selected strategy
	Mode() Mode
	// Evaluate runs the script with bindings visible to its code
	Evaluate(ctx context.Context, bindings Bindings) (any, error)
	// EvaluateContext runs the script against a full execution context
	EvaluateContext(ctx context.Context, ec *ExecutionContext) (any, error)
	// Invocable evaluates the script once with bindings from configure and returns
	// its callable entry points
	Invocable(ctx context.Context, configure BindingsConfigurer) (*InvocableScript, error)

	evaluatable()
}

type compiledScript struct {
	script   *Script
	compiled CompiledForm
}

func (s *compiledScript) Script() *Script { return s.script }
func (s *compiledScript) Engine() Engine  { return s.compiled.Engine() }
func (s *compiledScript) Mode() Mode      { return ModeCompiled }
func (s *compiledScript) evaluatable()    {}

func (s *compiledScript) Evaluate(ctx context.Context, bindings Bindings) (any, error) {
	if bindings == nil {
		bindings = NewBindings()
	}
	res, err := s.compiled.Eval(ctx, bindings)
	if err != nil {
		return nil, newScriptError(ErrEvaluationFailed, s.script, err)
	}
	return res, nil
}

func (s *compiledScript) EvaluateContext(ctx context.Context, ec *ExecutionContext) (any, error) {
	if ec == nil {
		return nil, fmt.Errorf("%w: execution context must not be nil", ErrInvalidArgument)
	}
	res, err := s.compiled.EvalContext(ctx, ec)
	if err != nil {
		return nil, newScriptError(ErrEvaluationFailed, s.script, err)
	}
	return res, nil
}

func (s *compiledScript) Invocable(ctx context.Context, configure BindingsConfigurer) (*InvocableScript, error) {
	return newInvocableScript(ctx, s, configure)
}

type interpretedScript struct {
	script *Script
	engine Engine
}

func (s *interpretedScript) Script() *Script { return s.script }
func (s *interpretedScript) Engine() Engine  { return s.engine }
func (s *interpretedScript) Mode() Mode      { return ModeInterpreted }
func (s *interpretedScript) evaluatable()    {}

func (s *interpretedScript) Evaluate(ctx context.Context, bindings Bindings) (any, error) {
	if bindings == nil {
		bindings = NewBindings()
	}
	res, err := s.engine.Eval(ctx, s.script.Code(), bindings)
	if err != nil {
		return nil, newScriptError(ErrEvaluationFailed, s.script, err)
	}
	return res, nil
}

func (s *interpretedScript) EvaluateContext(ctx context.Context, ec *ExecutionContext) (any, error) {
	if ec == nil {
		return nil, fmt.Errorf("%w: execution context must not be nil", ErrInvalidArgument)
	}
	res, err := s.engine.EvalContext(ctx, s.script.Code(), ec)
	if err != nil {
		return nil, newScriptError(ErrEvaluationFailed, s.script, err)
	}
	return res, nil
}

func (s *interpretedScript) Invocable(ctx context.Context, configure BindingsConfigurer) (*InvocableScript, error) {
	return newInvocableScript(ctx, s, configure)
}
