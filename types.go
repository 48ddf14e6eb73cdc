package scripting

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// MimeTypeJavaScript is the canonical JavaScript MIME type. Scripts declaring it
	// are always bound to JavaScriptEngineName.
	MimeTypeJavaScript = "text/javascript"

	// MimeTypeLua Lua scripts
	MimeTypeLua = "text/x-lua"

	// MimeTypeStarlark Starlark scripts
	MimeTypeStarlark = "text/x-starlark"
)

// Script is an immutable description of source code, the language it is written in
// (via its MIME type) and descriptive metadata.
type Script struct {
	id          string
	realmID     string
	name        string
	mimeType    string
	code        string
	description string
}

// NewScript creates a Script. An empty id means the script has not been persisted.
func NewScript(id, realmID, name, mimeType, code, description string) *Script {
	return &Script{
		id:          id,
		realmID:     realmID,
		name:        name,
		mimeType:    mimeType,
		code:        code,
		description: description,
	}
}

func (s *Script) ID() string          { return s.id }
func (s *Script) RealmID() string     { return s.realmID }
func (s *Script) Name() string        { return s.name }
func (s *Script) MimeType() string    { return s.mimeType }
func (s *Script) Code() string        { return s.code }
func (s *Script) Description() string { return s.description }

// String identifies the script in logs and error messages. The code is never included.
func (s *Script) String() string {
	if s == nil {
		return "Script{<nil>}"
	}
	return fmt.Sprintf("Script{id=%q, realm=%q, name=%q, mimeType=%q}", s.id, s.realmID, s.name, s.mimeType)
}

func (s *Script) validate() error {
	if s == nil {
		return fmt.Errorf("%w: script must not be nil", ErrInvalidArgument)
	}
	if strings.TrimSpace(s.code) == "" {
		return &ScriptError{
			Kind:   ErrInvalidArgument,
			Script: s,
			Err:    ErrBlankCode,
		}
	}
	return nil
}

// Bindings is a flat name to value mapping visible to executing script code.
type Bindings map[string]any

// NewBindings returns empty Bindings.
func NewBindings() Bindings {
	return make(Bindings)
}

// ScopeLevel selects one of the scopes of an ExecutionContext.
type ScopeLevel int

const (
	// EngineScope holds the bindings of a single evaluation; it shadows GlobalScope.
	EngineScope ScopeLevel = 100
	// GlobalScope holds bindings shared by every evaluation using the context.
	GlobalScope ScopeLevel = 200
)

// ExecutionContext is a richer evaluation environment than flat Bindings: a scope
// chain, output streams and the engine runtime retained by the last evaluation.
//
// An ExecutionContext is not safe for concurrent use, and once evaluated it belongs
// to the engine that evaluated it.
type ExecutionContext struct {
	engineScope Bindings
	globalScope Bindings

	Writer      io.Writer
	ErrorWriter io.Writer

	runtime any
}

// NewExecutionContext returns a context using bindings as engine scope and the
// process standard streams.
func NewExecutionContext(bindings Bindings) *ExecutionContext {
	if bindings == nil {
		bindings = NewBindings()
	}
	return &ExecutionContext{
		engineScope: bindings,
		globalScope: NewBindings(),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
}

// Bindings returns the bindings of the given scope, or nil for an unknown level.
func (c *ExecutionContext) Bindings(level ScopeLevel) Bindings {
	switch level {
	case EngineScope:
		return c.engineScope
	case GlobalScope:
		return c.globalScope
	default:
		return nil
	}
}

// SetBindings replaces the bindings of the given scope.
func (c *ExecutionContext) SetBindings(bindings Bindings, level ScopeLevel) error {
	if bindings == nil {
		bindings = NewBindings()
	}
	switch level {
	case EngineScope:
		c.engineScope = bindings
	case GlobalScope:
		c.globalScope = bindings
	default:
		return fmt.Errorf("%w: unknown scope level %d", ErrInvalidArgument, level)
	}
	return nil
}

// Attribute looks name up along the scope chain, engine scope first.
func (c *ExecutionContext) Attribute(name string) (any, bool) {
	if v, ok := c.engineScope[name]; ok {
		return v, true
	}
	v, ok := c.globalScope[name]
	return v, ok
}

// Flatten merges the scope chain into one Bindings; engine scope wins.
func (c *ExecutionContext) Flatten() Bindings {
	out := make(Bindings, len(c.globalScope)+len(c.engineScope))
	for k, v := range c.globalScope {
		out[k] = v
	}
	for k, v := range c.engineScope {
		out[k] = v
	}
	return out
}

// Runtime returns the engine runtime retained by the last evaluation, if any.
// Engines use it to keep top-level declarations visible to later calls.
func (c *ExecutionContext) Runtime() any {
	return c.runtime
}

// SetRuntime is called by engines after evaluating against the context.
func (c *ExecutionContext) SetRuntime(rt any) {
	c.runtime = rt
}

// Stdout returns Writer, or io.Discard when unset.
func (c *ExecutionContext) Stdout() io.Writer {
	if c.Writer == nil {
		return io.Discard
	}
	return c.Writer
}

// Stderr returns the error writer, or io.Discard when unset.
func (c *ExecutionContext) Stderr() io.Writer {
	if c.ErrorWriter == nil {
		return io.Discard
	}
	return c.ErrorWriter
}
