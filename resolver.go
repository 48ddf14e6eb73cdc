package scripting

import (
	"context"
	"fmt"
)

// JavaScriptEngineName is the engine MimeTypeJavaScript scripts are bound to, even
// when other engines advertise the same MIME type.
const JavaScriptEngineName = "goja"

// Resolver maps a script's MIME type to an engine.
type Resolver struct {
	registry *Registry
	guard    *Guard
}

// NewResolver creates a Resolver performing lookups in registry under guard.
func NewResolver(registry *Registry, guard *Guard) (*Resolver, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry must not be nil", ErrInvalidArgument)
	}
	if guard == nil {
		return nil, fmt.Errorf("%w: guard must not be nil", ErrInvalidArgument)
	}
	return &Resolver{registry: registry, guard: guard}, nil
}

// Resolve returns the engine for script, or an ErrEngineNotFound error.
func (r *Resolver) Resolve(ctx context.Context, script *Script) (Engine, error) {
	if script == nil {
		return nil, fmt.Errorf("%w: script must not be nil", ErrInvalidArgument)
	}
	return guarded(ctx, r.guard, func(context.Context) (Engine, error) {
		var (
			eng Engine
			ok  bool
		)
		if normalizeMimeType(script.MimeType()) == MimeTypeJavaScript {
			eng, ok = r.registry.EngineByName(JavaScriptEngineName)
		} else {
			eng, ok = r.registry.EngineByMimeType(script.MimeType())
		}
		if !ok {
			return nil, newScriptError(ErrEngineNotFound, script,
				fmt.Errorf("could not find script engine for %s", script))
		}
		return eng, nil
	})
}
