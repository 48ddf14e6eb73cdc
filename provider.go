package scripting

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// Provider is the entry point hosts use to prepare scripts without knowing which
// engine executes them.
type Provider struct {
	registry *Registry
	guard    *Guard
	resolver *Resolver
	logger   log.Logger
	log      *log.Helper
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the kratos logger of the provider.
func WithLogger(logger log.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New creates a Provider on the process registry.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	reg, err := GetRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return NewProvider(reg, opts...)
}

// NewProvider creates a Provider resolving engines from registry.
func NewProvider(registry *Registry, opts ...Option) (*Provider, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry must not be nil", ErrInvalidArgument)
	}

	p := &Provider{registry: registry}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = defaultLogger()
	}
	p.log = newHelper(p.logger, "scripting/provider")
	p.guard = NewGuard(registry.Loader(), p.logger)

	resolver, err := NewResolver(registry, p.guard)
	if err != nil {
		return nil, err
	}
	p.resolver = resolver

	return p, nil
}

// CreateScript builds an unsaved Script; no engine is involved.
func (p *Provider) CreateScript(realmID, mimeType, name, code, description string) *Script {
	return NewScript("", realmID, name, mimeType, code, description)
}

// PrepareEvaluatableScript resolves the engine of script and prepares it, compiling
// the code when the engine supports compilation.
func (p *Provider) PrepareEvaluatableScript(ctx context.Context, script *Script) (EvaluatableScript, error) {
	if err := script.validate(); err != nil {
		return nil, err
	}

	engine, err := p.resolver.Resolve(ctx, script)
	if err != nil {
		p.log.Errorf("no script engine available for %s: %v", script, err)
		return nil, err
	}

	compiler, ok := engine.(Compiler)
	if !ok {
		p.log.Debugf("prepared %s on engine %s, mode %s", script, engine.Name(), ModeInterpreted)
		return &interpretedScript{script: script, engine: engine}, nil
	}

	compiled, err := guarded(ctx, p.guard, func(ctx context.Context) (CompiledForm, error) {
		return compiler.Compile(ctx, script.Code())
	})
	if err != nil {
		p.log.Warnf("compilation of %s failed: %v", script, err)
		return nil, newScriptError(ErrCompilationFailed, script, err)
	}
	if compiled == nil {
		return nil, newScriptError(ErrCompilationFailed, script,
			fmt.Errorf("engine %s returned no compiled form", engine.Name()))
	}

	p.log.Debugf("prepared %s on engine %s, mode %s", script, engine.Name(), ModeCompiled)
	return &compiledScript{script: script, compiled: compiled}, nil
}

// PrepareInvocableScript prepares script, evaluates it once with the bindings set up
// by configure and returns its callable entry points. Errors from configure are
// returned unchanged.
func (p *Provider) PrepareInvocableScript(ctx context.Context, script *Script, configure BindingsConfigurer) (*InvocableScript, error) {
	if configure == nil {
		return nil, fmt.Errorf("%w: bindings configurer must not be nil", ErrInvalidArgument)
	}
	evaluatable, err := p.PrepareEvaluatableScript(ctx, script)
	if err != nil {
		return nil, err
	}
	return evaluatable.Invocable(ctx, configure)
}

// Registry returns the registry engines are resolved from.
func (p *Provider) Registry() *Registry {
	return p.registry
}

// Close is a no-op; the process registry outlives providers.
func (p *Provider) Close() error {
	return nil
}
