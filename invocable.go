package scripting

import (
	"context"
	"fmt"
	"sync/atomic"
)

// BindingsConfigurer populates the bindings of an InvocableScript with host values
// (request context, logger, helper objects). It is called exactly once per instance.
type BindingsConfigurer func(bindings Bindings) error

// NoBindings configures nothing.
func NoBindings(Bindings) error { return nil }

// StaticBindings returns a configurer copying values into the bindings.
func StaticBindings(values map[string]any) BindingsConfigurer {
	return func(b Bindings) error {
		for k, v := range values {
			b[k] = v
		}
		return nil
	}
}

// InvocableScript exposes the functions declared by one evaluation of a script.
//
// Calls on the same instance are not serialized; concurrent callers should use
// separate instances or an InvocablePool.
type InvocableScript struct {
	script  *Script
	engine  Engine
	invoker Invocable
	ec      *ExecutionContext
	closed  atomic.Bool
}

func newInvocableScript(ctx context.Context, es EvaluatableScript, configure BindingsConfigurer) (*InvocableScript, error) {
	if configure == nil {
		return nil, fmt.Errorf("%w: bindings configurer must not be nil", ErrInvalidArgument)
	}

	invoker, ok := es.Engine().(Invocable)
	if !ok {
		return nil, newScriptError(ErrNotInvocable, es.Script(),
			fmt.Errorf("engine %s cannot invoke functions", es.Engine().Name()))
	}

	bindings := NewBindings()
	if err := configure(bindings); err != nil {
		return nil, err
	}

	ec := NewExecutionContext(bindings)
	if _, err := es.EvaluateContext(ctx, ec); err != nil {
		return nil, err
	}

	return &InvocableScript{
		script:  es.Script(),
		engine:  es.Engine(),
		invoker: invoker,
		ec:      ec,
	}, nil
}

// Call invokes the named function inside the evaluated scope.
func (s *InvocableScript) Call(ctx context.Context, name string, args ...any) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: function name must not be empty", ErrInvalidArgument)
	}
	if s.closed.Load() {
		return nil, newScriptError(ErrScriptClosed, s.script, nil)
	}
	res, err := s.invoker.InvokeFunction(ctx, s.ec, name, args...)
	if err != nil {
		return nil, newScriptError(ErrEvaluationFailed, s.script, fmt.Errorf("call %s: %w", name, err))
	}
	return res, nil
}

func (s *InvocableScript) Script() *Script { return s.script }
func (s *InvocableScript) Engine() Engine  { return s.engine }

// Context returns the execution context populated by the initial evaluation.
func (s *InvocableScript) Context() *ExecutionContext { return s.ec }

// Close hands the evaluated scope back to the engine. Later calls fail with
// ErrScriptClosed. Close is idempotent.
func (s *InvocableScript) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r, ok := s.engine.(ContextReleaser); ok {
		r.ReleaseContext(s.ec)
	}
	return nil
}
