package js

// Option configures an Engine.
type Option func(*Engine)

// WithCompatMode toggles compatibility mode. When on, exported Go fields and methods
// of host objects are reachable in lower camel case (obj.getName(), obj.name); when
// off, struct fields are exposed by their json tag.
func WithCompatMode(enabled bool) Option {
	return func(e *Engine) {
		e.compat = enabled
	}
}

// WithMaxCallStackSize sets the maximum call stack size of each runtime.
// A value of 0 or less means no limit.
func WithMaxCallStackSize(size int) Option {
	return func(e *Engine) {
		e.maxCallStackSize = size
	}
}

// WithConsole enables the console object (console.log, etc.) in every runtime.
func WithConsole() Option {
	return func(e *Engine) {
		e.console = true
	}
}

// WithStrict compiles and runs scripts in strict mode.
func WithStrict() Option {
	return func(e *Engine) {
		e.strict = true
	}
}
