package js

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/go-kratos/kratos/v2/log"

	scripting "github.com/tx7do/go-scripting-provider"
)

func init() {
	_ = scripting.Register(scripting.JavaScriptEngineName, func(ctx context.Context) (scripting.Engine, error) {
		return NewFromConfig(ctx)
	})
}

var (
	engineAliases   = []string{"js", "javascript", "JavaScript", "ecmascript"}
	engineMimeTypes = []string{
		scripting.MimeTypeJavaScript,
		"application/javascript",
		"text/ecmascript",
		"application/ecmascript",
	}
)

// Engine JavaScript 脚本引擎实现，基于 goja。
//
// Engine 本身无状态，可被并发共享；每个 ExecutionContext 持有自己的 goja.Runtime。
type Engine struct {
	loader  require.SourceLoader
	modules *require.Registry // require() 模块注册表，绑定构造时的 Loader

	compat           bool
	maxCallStackSize int
	console          bool
	strict           bool
}

// jsRuntime is the state retained in an ExecutionContext.
// 同一 runtime 的执行由 mu 串行化。
type jsRuntime struct {
	engine *Engine
	vm     *goja.Runtime
	mu     sync.Mutex
}

// New creates an engine whose require() resolves modules through the ambient
// loader of ctx.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{compat: scripting.DefaultCompatMode}
	for _, opt := range opts {
		opt(e)
	}
	e.loader = sourceLoader(scripting.LoaderFrom(ctx))
	e.modules = require.NewRegistry(require.WithLoader(e.loader))
	return e, nil
}

// NewFromConfig creates an engine configured from SCRIPTING_* environment variables.
// An unparsable SCRIPTING_JS_COMPAT keeps the default compatibility mode.
func NewFromConfig(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg, err := scripting.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load javascript engine config: %w", err)
	}

	compat, ok := cfg.CompatMode()
	if !ok {
		log.Warnf("invalid %s value %q, using %t", scripting.CompatModeEnv, cfg.JSCompat, compat)
	}

	return New(ctx, append([]Option{WithCompatMode(compat)}, opts...)...)
}

// sourceLoader adapts a scripting.Loader to the require package.
func sourceLoader(l scripting.Loader) require.SourceLoader {
	return func(path string) ([]byte, error) {
		src, err := l.Load(path)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, require.ModuleFileDoesNotExistError
		}
		return src, err
	}
}

func (e *Engine) Name() string        { return scripting.JavaScriptEngineName }
func (e *Engine) Aliases() []string   { return engineAliases }
func (e *Engine) MimeTypes() []string { return engineMimeTypes }

// CompatMode reports whether compatibility mode is on.
func (e *Engine) CompatMode() bool { return e.compat }

// Compile 编译脚本为 goja.Program，可在多个 runtime 上重复执行
func (e *Engine) Compile(_ context.Context, source string) (scripting.CompiledForm, error) {
	program, err := goja.Compile("", source, e.strict)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJavascriptCompileFailed, err)
	}
	return &compiledForm{engine: e, program: program}, nil
}

// Eval 在新的执行上下文中执行源码
func (e *Engine) Eval(ctx context.Context, source string, bindings scripting.Bindings) (any, error) {
	return e.EvalContext(ctx, source, scripting.NewExecutionContext(bindings))
}

// EvalContext 在给定执行上下文中执行源码
func (e *Engine) EvalContext(ctx context.Context, source string, ec *scripting.ExecutionContext) (any, error) {
	r, err := e.runtimeFor(ec)
	if err != nil {
		return nil, err
	}
	program, err := goja.Compile("", source, e.strict)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJavascriptCompileFailed, err)
	}
	return r.run(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunProgram(program)
	})
}

// InvokeFunction 调用上一次执行在 ec 中声明的函数
func (e *Engine) InvokeFunction(ctx context.Context, ec *scripting.ExecutionContext, name string, args ...any) (any, error) {
	if ec == nil {
		return nil, ErrJavascriptNilContext
	}
	r, ok := ec.Runtime().(*jsRuntime)
	if !ok || r.engine != e {
		return nil, ErrJavascriptNotEvaluated
	}

	return r.run(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		v := vm.Get(name)
		if v == nil || goja.IsUndefined(v) {
			return nil, fmt.Errorf("%w: %s", scripting.ErrFunctionNotFound, name)
		}
		fn, ok := goja.AssertFunction(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a function", scripting.ErrFunctionNotFound, name)
		}

		vals := make([]goja.Value, len(args))
		for i, a := range args {
			vals[i] = vm.ToValue(a)
		}
		return fn(goja.Undefined(), vals...)
	})
}

// runtimeFor 返回 ec 中已有的 runtime，或创建新的；并写入当前绑定
func (e *Engine) runtimeFor(ec *scripting.ExecutionContext) (*jsRuntime, error) {
	if ec == nil {
		return nil, ErrJavascriptNilContext
	}

	r, ok := ec.Runtime().(*jsRuntime)
	if !ok || r.engine != e {
		r = &jsRuntime{engine: e, vm: e.newRuntime(ec)}
		ec.SetRuntime(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, value := range ec.Flatten() {
		if err := r.vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return r, nil
}

func (e *Engine) newRuntime(ec *scripting.ExecutionContext) *goja.Runtime {
	vm := goja.New()
	if e.compat {
		vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	} else {
		vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	}
	if e.maxCallStackSize > 0 {
		vm.SetMaxCallStackSize(e.maxCallStackSize)
	}

	if e.console {
		// console 的输出跟随 ec，需要每个 runtime 独立的注册表
		modules := require.NewRegistry(require.WithLoader(e.loader))
		modules.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(contextPrinter{ec: ec}))
		modules.Enable(vm)
		console.Enable(vm)
	} else {
		e.modules.Enable(vm)
	}

	_ = vm.Set("print", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		_, _ = fmt.Fprintln(ec.Stdout(), strings.Join(parts, " "))
		return goja.Undefined()
	})

	return vm
}

// contextPrinter writes console output to the streams of an ExecutionContext.
type contextPrinter struct {
	ec *scripting.ExecutionContext
}

func (p contextPrinter) Log(s string)   { _, _ = fmt.Fprintln(p.ec.Stdout(), s) }
func (p contextPrinter) Warn(s string)  { _, _ = fmt.Fprintln(p.ec.Stdout(), s) }
func (p contextPrinter) Error(s string) { _, _ = fmt.Fprintln(p.ec.Stderr(), s) }

// run 在受保护的环境中执行 fn：ctx 取消时中断 runtime，panic 转为错误
func (r *jsRuntime) run(ctx context.Context, fn func(vm *goja.Runtime) (goja.Value, error)) (result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
		r.vm.ClearInterrupt()
	}()

	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, fmt.Errorf("%w: panic: %v", ErrJavascriptExecutionFailed, rec)
		}
	}()

	val, err := fn(r.vm)
	if err != nil {
		return nil, err
	}
	return export(val), nil
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// compiledForm 已编译的 JavaScript 程序
type compiledForm struct {
	engine  *Engine
	program *goja.Program
}

func (c *compiledForm) Engine() scripting.Engine { return c.engine }

func (c *compiledForm) Eval(ctx context.Context, bindings scripting.Bindings) (any, error) {
	return c.EvalContext(ctx, scripting.NewExecutionContext(bindings))
}

func (c *compiledForm) EvalContext(ctx context.Context, ec *scripting.ExecutionContext) (any, error) {
	r, err := c.engine.runtimeFor(ec)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunProgram(c.program)
	})
}
