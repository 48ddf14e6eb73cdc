package starlark

import (
	"context"
	"fmt"
	"maps"
	"sync"

	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/syntax"

	scripting "github.com/tx7do/go-scripting-provider"
)

// EngineName is the canonical name of the Starlark engine.
const EngineName = "starlark"

func init() {
	_ = scripting.Register(EngineName, func(ctx context.Context) (scripting.Engine, error) {
		return New(ctx)
	})
}

var (
	engineAliases   = []string{"star", "bzl", "Starlark"}
	engineMimeTypes = []string{scripting.MimeTypeStarlark, "application/x-starlark"}
)

// resultName is the global read as the value of an evaluation; an evaluation
// ending in an expression statement yields it through "_".
const (
	resultName     = "result"
	lastExprName   = "_"
	threadNameEval = "eval"
)

// Engine Starlark 脚本引擎实现，基于 go.starlark.net。
type Engine struct {
	loader   scripting.Loader
	modules  starlarkLib.StringDict
	options  *syntax.FileOptions
	maxSteps uint64
}

// starlarkRuntime 保存在 ExecutionContext 中的状态：已定义的全局变量与 load() 缓存。
type starlarkRuntime struct {
	engine  *Engine
	globals starlarkLib.StringDict
	loaded  map[string]*loadEntry
	mu      sync.Mutex
}

type loadEntry struct {
	globals starlarkLib.StringDict
	err     error
}

// New creates an engine whose load() resolves modules through the ambient loader of ctx.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		loader:  scripting.LoaderFrom(ctx),
		modules: standardModules(),
		options: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Name() string        { return EngineName }
func (e *Engine) Aliases() []string   { return engineAliases }
func (e *Engine) MimeTypes() []string { return engineMimeTypes }

// Compile 解析并编译脚本；绑定中的名字在执行时提供
func (e *Engine) Compile(_ context.Context, source string) (scripting.CompiledForm, error) {
	prog, err := e.compile("", source)
	if err != nil {
		return nil, err
	}
	return &compiledForm{engine: e, program: prog}, nil
}

func (e *Engine) compile(filename, source string) (*starlarkLib.Program, error) {
	f, err := e.options.Parse(filename, source, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStarlarkCompileFailed, err)
	}
	captureLastExpr(f)

	prog, err := starlarkLib.FileProgram(f, isPredeclared)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStarlarkCompileFailed, err)
	}
	return prog, nil
}

// captureLastExpr rewrites a trailing expression statement into "_ = expr".
func captureLastExpr(f *syntax.File) {
	n := len(f.Stmts)
	if n == 0 {
		return
	}
	stmt, ok := f.Stmts[n-1].(*syntax.ExprStmt)
	if !ok {
		return
	}
	start, _ := stmt.X.Span()
	f.Stmts[n-1] = &syntax.AssignStmt{
		OpPos: start,
		Op:    syntax.EQ,
		LHS:   &syntax.Ident{NamePos: start, Name: lastExprName},
		RHS:   stmt.X,
	}
}

// Eval 在新的执行上下文中执行源码
func (e *Engine) Eval(ctx context.Context, source string, bindings scripting.Bindings) (any, error) {
	return e.EvalContext(ctx, source, scripting.NewExecutionContext(bindings))
}

// EvalContext 在给定执行上下文中执行源码；之前定义的全局变量对本次执行可见
func (e *Engine) EvalContext(ctx context.Context, source string, ec *scripting.ExecutionContext) (any, error) {
	prog, err := e.compile("", source)
	if err != nil {
		return nil, err
	}
	return e.exec(ctx, prog, ec)
}

// InvokeFunction 调用上一次执行在 ec 中定义的函数
func (e *Engine) InvokeFunction(ctx context.Context, ec *scripting.ExecutionContext, name string, args ...any) (any, error) {
	if ec == nil {
		return nil, ErrStarlarkNilContext
	}
	r, ok := ec.Runtime().(*starlarkRuntime)
	if !ok || r.engine != e {
		return nil, ErrStarlarkNotEvaluated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fn, ok := r.globals[name].(starlarkLib.Callable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", scripting.ErrFunctionNotFound, name)
	}

	sArgs := make(starlarkLib.Tuple, len(args))
	for i, arg := range args {
		v, err := toStarlark(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		sArgs[i] = v
	}

	var out starlarkLib.Value
	err := e.withThread(ctx, r, ec, name, func(thread *starlarkLib.Thread) (err error) {
		out, err = starlarkLib.Call(thread, fn, sArgs, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromStarlark(out)
}

// runtimeFor 返回 ec 中已有的 runtime，或创建新的
func (e *Engine) runtimeFor(ec *scripting.ExecutionContext) (*starlarkRuntime, error) {
	if ec == nil {
		return nil, ErrStarlarkNilContext
	}
	r, ok := ec.Runtime().(*starlarkRuntime)
	if !ok || r.engine != e {
		r = &starlarkRuntime{
			engine:  e,
			globals: starlarkLib.StringDict{},
			loaded:  map[string]*loadEntry{},
		}
		ec.SetRuntime(r)
	}
	return r, nil
}

// exec 执行程序并将新定义的全局变量并入 runtime
func (e *Engine) exec(ctx context.Context, prog *starlarkLib.Program, ec *scripting.ExecutionContext) (any, error) {
	r, err := e.runtimeFor(ec)
	if err != nil {
		return nil, err
	}

	bindings, err := toStringDict(ec.Flatten())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	env := predeclared(e.modules, r.globals, bindings)
	var globals starlarkLib.StringDict
	err = e.withThread(ctx, r, ec, threadNameEval, func(thread *starlarkLib.Thread) (err error) {
		globals, err = prog.Init(thread, env)
		return err
	})
	if err != nil {
		return nil, err
	}
	maps.Copy(r.globals, globals)

	return fromStarlark(resultOf(globals))
}

func resultOf(globals starlarkLib.StringDict) starlarkLib.Value {
	if v, ok := globals[resultName]; ok {
		return v
	}
	if v, ok := globals[lastExprName]; ok {
		return v
	}
	return starlarkLib.None
}

// withThread 在新线程中执行 fn：print 写到 ec，load() 通过 Loader 解析，ctx 取消时中止执行
func (e *Engine) withThread(ctx context.Context, r *starlarkRuntime, ec *scripting.ExecutionContext, name string, fn func(*starlarkLib.Thread) error) (err error) {
	thread := &starlarkLib.Thread{
		Name: name,
		Print: func(_ *starlarkLib.Thread, msg string) {
			_, _ = fmt.Fprintln(ec.Stdout(), msg)
		},
		Load: func(thread *starlarkLib.Thread, module string) (starlarkLib.StringDict, error) {
			return e.load(thread, r, module)
		},
	}
	if e.maxSteps > 0 {
		thread.SetMaxExecutionSteps(e.maxSteps)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("starlark panic: %v", rec)
		}
	}()

	return fn(thread)
}

// load 通过 Loader 加载模块，结果按 runtime 缓存并冻结
func (e *Engine) load(thread *starlarkLib.Thread, r *starlarkRuntime, module string) (starlarkLib.StringDict, error) {
	if entry, ok := r.loaded[module]; ok {
		if entry == nil {
			return nil, fmt.Errorf("%w: %s", ErrLoadCycle, module)
		}
		return entry.globals, entry.err
	}
	r.loaded[module] = nil

	entry := &loadEntry{}
	src, err := e.loader.Load(module)
	if err == nil {
		var prog *starlarkLib.Program
		prog, err = e.compile(module, string(src))
		if err == nil {
			entry.globals, err = prog.Init(thread, e.modules)
			entry.globals.Freeze()
		}
	}
	entry.err = err
	r.loaded[module] = entry
	return entry.globals, entry.err
}

// compiledForm 已编译的 Starlark 程序
type compiledForm struct {
	engine  *Engine
	program *starlarkLib.Program
}

func (c *compiledForm) Engine() scripting.Engine { return c.engine }

func (c *compiledForm) Eval(ctx context.Context, bindings scripting.Bindings) (any, error) {
	return c.EvalContext(ctx, scripting.NewExecutionContext(bindings))
}

func (c *compiledForm) EvalContext(ctx context.Context, ec *scripting.ExecutionContext) (any, error) {
	return c.engine.exec(ctx, c.program, ec)
}
