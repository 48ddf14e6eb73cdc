package lua

import (
	"context"
	"fmt"
	"strings"
	"sync"

	Lua "github.com/yuin/gopher-lua"

	scripting "github.com/tx7do/go-scripting-provider"
)

// EngineName is the canonical name of the Lua engine.
const EngineName = "gopher-lua"

func init() {
	_ = scripting.Register(EngineName, func(ctx context.Context) (scripting.Engine, error) {
		return New(ctx)
	})
}

var (
	engineAliases   = []string{"lua", "Lua"}
	engineMimeTypes = []string{scripting.MimeTypeLua, "application/x-lua", "text/lua"}
)

// Option configures an Engine.
type Option func(*Engine)

// WithLibs preloads gopher-lua-libs and crypto into every state.
func WithLibs() Option {
	return func(e *Engine) {
		e.libs = true
	}
}

// WithPoolSize sets how many idle states are kept for reuse.
func WithPoolSize(n int) Option {
	return func(e *Engine) {
		e.poolSize = n
	}
}

// Engine Lua 脚本引擎实现，基于 gopher-lua。
//
// 该引擎不支持预编译：每次执行都会重新解析源码。
type Engine struct {
	pool     *statePool
	loader   scripting.Loader
	libs     bool
	poolSize int
}

// luaRuntime 保存在 ExecutionContext 中的状态：借出的 LState 与本次执行的环境表。
type luaRuntime struct {
	engine *Engine
	L      *Lua.LState
	env    *Lua.LTable
	mu     sync.Mutex
}

// New creates an engine whose require resolves modules through the ambient loader of ctx.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		loader:   scripting.LoaderFrom(ctx),
		poolSize: defaultMaxSaved,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.pool = newStatePool(e.poolSize, e.setupState)
	return e, nil
}

func (e *Engine) setupState(L *Lua.LState) {
	if e.libs {
		preloadLibs(L)
	}
	installLoader(L, e.loader)
}

func (e *Engine) Name() string        { return EngineName }
func (e *Engine) Aliases() []string   { return engineAliases }
func (e *Engine) MimeTypes() []string { return engineMimeTypes }

// Close 关闭状态池
func (e *Engine) Close() error {
	e.pool.Shutdown()
	return nil
}

// Eval 在临时执行上下文中执行源码，结束后状态归还到池中
func (e *Engine) Eval(ctx context.Context, source string, bindings scripting.Bindings) (any, error) {
	ec := scripting.NewExecutionContext(bindings)
	defer e.release(ec)
	return e.EvalContext(ctx, source, ec)
}

// EvalContext 在给定执行上下文中执行源码；返回代码块的第一个返回值
func (e *Engine) EvalContext(ctx context.Context, source string, ec *scripting.ExecutionContext) (any, error) {
	r, err := e.runtimeFor(ec)
	if err != nil {
		return nil, err
	}
	return r.run(ctx, func(L *Lua.LState) (Lua.LValue, error) {
		fn, err := L.LoadString(source)
		if err != nil {
			return nil, err
		}
		L.SetFEnv(fn, r.env)
		L.Push(fn)
		if err := L.PCall(0, 1, nil); err != nil {
			return nil, err
		}
		return popResult(L), nil
	})
}

// InvokeFunction 调用 Lua 函数
func (e *Engine) InvokeFunction(ctx context.Context, ec *scripting.ExecutionContext, name string, args ...any) (any, error) {
	if ec == nil {
		return nil, ErrLuaNilContext
	}
	r, ok := ec.Runtime().(*luaRuntime)
	if !ok || r.engine != e {
		return nil, ErrLuaNotEvaluated
	}

	return r.run(ctx, func(L *Lua.LState) (Lua.LValue, error) {
		fn := L.GetField(r.env, name)
		if fn.Type() != Lua.LTFunction {
			return nil, fmt.Errorf("%w: %s", scripting.ErrFunctionNotFound, name)
		}

		// 转换参数
		lArgs := make([]Lua.LValue, len(args))
		for i, arg := range args {
			lArgs[i] = toLValue(L, arg)
		}

		if err := L.CallByParam(Lua.P{Fn: fn, NRet: 1, Protect: true}, lArgs...); err != nil {
			return nil, err
		}
		return popResult(L), nil
	})
}

// ReleaseContext 将 ec 借用的状态归还到池中；之后 ec 不再持有可调用的函数
func (e *Engine) ReleaseContext(ec *scripting.ExecutionContext) {
	if ec != nil {
		e.release(ec)
	}
}

// idleStates 返回池中空闲状态数
func (e *Engine) idleStates() int {
	return e.pool.Idle()
}

// runtimeFor 返回 ec 中已有的状态，或从池中借用一个并创建新的环境表
func (e *Engine) runtimeFor(ec *scripting.ExecutionContext) (*luaRuntime, error) {
	if ec == nil {
		return nil, ErrLuaNilContext
	}

	r, ok := ec.Runtime().(*luaRuntime)
	if !ok || r.engine != e {
		L, err := e.pool.Borrow()
		if err != nil {
			return nil, err
		}
		r = &luaRuntime{engine: e, L: L, env: newEnv(L, ec)}
		ec.SetRuntime(r)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, value := range ec.Flatten() {
		r.env.RawSetString(name, toLValue(r.L, value))
	}
	return r, nil
}

// release 将 ec 借用的状态归还到池中，池会恢复状态的初始镜像
func (e *Engine) release(ec *scripting.ExecutionContext) {
	r, ok := ec.Runtime().(*luaRuntime)
	if !ok || r.engine != e {
		return
	}
	ec.SetRuntime(nil)

	r.mu.Lock()
	defer r.mu.Unlock()
	e.pool.Return(r.L)
}

// newEnv 创建本次执行的环境表，未定义的名字回落到状态的全局表；_G 指向环境表本身
func newEnv(L *Lua.LState, ec *scripting.ExecutionContext) *Lua.LTable {
	env := L.NewTable()
	mt := L.NewTable()
	mt.RawSetString("__index", L.G.Global)
	L.SetMetatable(env, mt)
	env.RawSetString("_G", env)

	env.RawSetString("print", L.NewFunction(func(L *Lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		_, _ = fmt.Fprintln(ec.Stdout(), strings.Join(parts, "\t"))
		return 0
	}))
	return env
}

func popResult(L *Lua.LState) Lua.LValue {
	ret := L.Get(-1)
	L.Pop(1)
	return ret
}

// run 串行执行 fn，ctx 取消时 gopher-lua 会中止执行
func (r *luaRuntime) run(ctx context.Context, fn func(L *Lua.LState) (Lua.LValue, error)) (result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.L.SetContext(ctx)
	defer r.L.RemoveContext()

	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, fmt.Errorf("lua panic: %v", rec)
		}
	}()

	lv, err := fn(r.L)
	if err != nil {
		return nil, err
	}
	return fromLValue(lv), nil
}
