package scripting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
)

var errFake = errors.New("fake engine failure")

// fakeEngine evaluates "fail" as an error, "echo <name>" as the binding value and
// anything else as the source text itself. Functions are bindings holding a
// func(args ...any) (any, error).
type fakeEngine struct {
	name    string
	aliases []string
	mimes   []string

	evals   atomic.Int32
	mu      sync.Mutex
	loaders []Loader // ambient loaders seen by Eval
}

func newFakeEngine(name string, mimes ...string) *fakeEngine {
	return &fakeEngine{name: name, mimes: mimes}
}

func (e *fakeEngine) Name() string        { return e.name }
func (e *fakeEngine) Aliases() []string   { return e.aliases }
func (e *fakeEngine) MimeTypes() []string { return e.mimes }

func (e *fakeEngine) Eval(ctx context.Context, source string, bindings Bindings) (any, error) {
	return e.EvalContext(ctx, source, NewExecutionContext(bindings))
}

func (e *fakeEngine) EvalContext(ctx context.Context, source string, ec *ExecutionContext) (any, error) {
	e.evals.Add(1)
	e.mu.Lock()
	e.loaders = append(e.loaders, LoaderFrom(ctx))
	e.mu.Unlock()

	ec.SetRuntime(e)
	switch {
	case source == "fail":
		return nil, errFake
	case strings.HasPrefix(source, "echo "):
		v, _ := ec.Attribute(strings.TrimPrefix(source, "echo "))
		return v, nil
	default:
		return source, nil
	}
}

// fakeCompiler adds compilation; sources starting with "syntax error" are rejected.
type fakeCompiler struct {
	*fakeEngine
	compiles     atomic.Int32
	compileCtxLd Loader
	nilForm      bool
}

func newFakeCompiler(name string, mimes ...string) *fakeCompiler {
	return &fakeCompiler{fakeEngine: newFakeEngine(name, mimes...)}
}

func (e *fakeCompiler) Compile(ctx context.Context, source string) (CompiledForm, error) {
	e.compiles.Add(1)
	e.compileCtxLd = LoaderFrom(ctx)
	if strings.HasPrefix(source, "syntax error") {
		return nil, errFake
	}
	if e.nilForm {
		return nil, nil
	}
	return &fakeForm{engine: e, source: source}, nil
}

type fakeForm struct {
	engine *fakeCompiler
	source string
	runs   atomic.Int32
}

func (f *fakeForm) Engine() Engine { return f.engine }

func (f *fakeForm) Eval(ctx context.Context, bindings Bindings) (any, error) {
	return f.EvalContext(ctx, NewExecutionContext(bindings))
}

func (f *fakeForm) EvalContext(ctx context.Context, ec *ExecutionContext) (any, error) {
	f.runs.Add(1)
	return f.engine.EvalContext(ctx, f.source, ec)
}

// fakeInvocable adds function invocation and context release on top of compilation.
type fakeInvocable struct {
	*fakeCompiler
	released atomic.Int32
}

func newFakeInvocable(name string, mimes ...string) *fakeInvocable {
	return &fakeInvocable{fakeCompiler: newFakeCompiler(name, mimes...)}
}

func (e *fakeInvocable) Compile(ctx context.Context, source string) (CompiledForm, error) {
	form, err := e.fakeCompiler.Compile(ctx, source)
	if err != nil || form == nil {
		return form, err
	}
	return &fakeInvocableForm{fakeForm: form.(*fakeForm), engine: e}, nil
}

type fakeInvocableForm struct {
	*fakeForm
	engine *fakeInvocable
}

func (f *fakeInvocableForm) Engine() Engine { return f.engine }

func (e *fakeInvocable) InvokeFunction(_ context.Context, ec *ExecutionContext, name string, args ...any) (any, error) {
	v, ok := ec.Attribute(name)
	if !ok {
		return nil, ErrFunctionNotFound
	}
	fn, ok := v.(func(args ...any) (any, error))
	if !ok {
		return nil, ErrFunctionNotFound
	}
	return fn(args...)
}

func (e *fakeInvocable) ReleaseContext(ec *ExecutionContext) {
	e.released.Add(1)
	ec.SetRuntime(nil)
}

// recordingLoader is a distinguishable Loader.
type recordingLoader struct{ name string }

func (l *recordingLoader) Load(string) ([]byte, error) { return []byte(l.name), nil }
