package starlark

import starlarkLib "go.starlark.net/starlark"

// Option configures an Engine.
type Option func(*Engine)

// WithModule predeclares an extra module (or any value) under name.
func WithModule(name string, value starlarkLib.Value) Option {
	return func(e *Engine) {
		e.modules[name] = value
	}
}

// WithMaxSteps aborts an evaluation after n computation steps. 0 means no limit.
func WithMaxSteps(n uint64) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}
