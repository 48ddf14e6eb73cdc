package scripting

import "context"

// Engine is a resolved script engine for one declared language.
//
// Engines are shared by every caller of a Registry and must be safe for concurrent
// use; per-evaluation state lives in the ExecutionContext.
type Engine interface {
	//////////////////////////////////////////////////////////////////////////////////////////
	// Identity
	//////////////////////////////////////////////////////////////////////////////////////////

	// Name returns the canonical engine name
	Name() string
	// Aliases returns additional names the engine may be looked up by
	Aliases() []string
	// MimeTypes returns the MIME types the engine handles
	MimeTypes() []string

	//////////////////////////////////////////////////////////////////////////////////////////
	// Script Execution
	//////////////////////////////////////////////////////////////////////////////////////////

	// Eval parses and executes source against a fresh context built from bindings
	Eval(ctx context.Context, source string, bindings Bindings) (any, error)
	// EvalContext parses and executes source against a full execution context
	EvalContext(ctx context.Context, source string, ec *ExecutionContext) (any, error)
}

// Compiler is the optional capability of engines that can precompile source.
type Compiler interface {
	// Compile turns source into a form that can be evaluated many times
	Compile(ctx context.Context, source string) (CompiledForm, error)
}

// CompiledForm is an engine-specific precompiled representation of source code. It is
// tied to the Engine that produced it.
type CompiledForm interface {
	// Engine returns the engine that compiled the form
	Engine() Engine
	// Eval executes the form against a fresh context built from bindings
	Eval(ctx context.Context, bindings Bindings) (any, error)
	// EvalContext executes the form against a full execution context
	EvalContext(ctx context.Context, ec *ExecutionContext) (any, error)
}

// Invocable is the optional capability of engines that can call a function declared
// by a previous evaluation against the same ExecutionContext.
type Invocable interface {
	// InvokeFunction calls the named function with args
	InvokeFunction(ctx context.Context, ec *ExecutionContext, name string, args ...any) (any, error)
}

// ContextReleaser is the optional capability of engines that hold resources (a
// pooled interpreter state) in an ExecutionContext until it is released.
type ContextReleaser interface {
	// ReleaseContext frees what ec holds; later invocations against ec fail
	ReleaseContext(ec *ExecutionContext)
}
