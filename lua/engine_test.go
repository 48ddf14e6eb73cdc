package lua

import (
	"bytes"
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scripting "github.com/tx7do/go-scripting-provider"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_Identity(t *testing.T) {
	eng := newTestEngine(t)
	assert.Equal(t, EngineName, eng.Name())
	assert.Contains(t, eng.Aliases(), "lua")
	assert.Contains(t, eng.MimeTypes(), scripting.MimeTypeLua)

	var _ scripting.Invocable = eng
	var _ scripting.ContextReleaser = eng
	_, isCompiler := any(eng).(scripting.Compiler)
	assert.False(t, isCompiler)
}

func TestEngine_Eval(t *testing.T) {
	eng := newTestEngine(t)

	res, err := eng.Eval(context.Background(), "return x + 1", scripting.Bindings{"x": 42})
	require.NoError(t, err)
	assert.Equal(t, float64(43), res)

	res, err = eng.Eval(context.Background(), "local s = 'a' .. 'b'", nil)
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = eng.Eval(context.Background(), "return {name = 'sam', tags = {'a', 'b'}}", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "sam", "tags": []any{"a", "b"}}, res)
}

func TestEngine_EvalErrors(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Eval(context.Background(), "return (", nil)
	assert.Error(t, err)

	_, err = eng.Eval(context.Background(), "error('boom')", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = eng.EvalContext(context.Background(), "return 1", nil)
	assert.ErrorIs(t, err, ErrLuaNilContext)
}

func TestEngine_StatesAreReused(t *testing.T) {
	eng := newTestEngine(t)

	for i := 0; i < 3; i++ {
		_, err := eng.Eval(context.Background(), "return 1", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, eng.idleStates())
}

func TestEngine_NoGlobalLeakBetweenEvaluations(t *testing.T) {
	tests := []struct {
		name  string
		write string
		read  string
		want  any
	}{
		{name: "plain global", write: "leaked = 7", read: "return leaked", want: nil},
		{name: "through _G", write: "_G.leaked = 'from first'", read: "return leaked", want: nil},
		{name: "through thread env", write: "rawset(getfenv(0), 'leaked', 1)", read: "return leaked", want: nil},
		{name: "library function", write: "string.upper = function() return 'hijacked' end", read: "return string.upper('a')", want: "A"},
		{name: "string metatable", write: "getmetatable('').__index.lower = function() return 'hijacked' end", read: "return ('A'):lower()", want: "a"},
		{name: "new library key", write: "table.extra = 1", read: "return table.extra", want: nil},
		{name: "loaded module", write: "package.loaded.fake = {v = 1}", read: "return package.loaded.fake", want: nil},
		{name: "globals metatable", write: "setmetatable(getfenv(0), {__index = function() return 'x' end})", read: "return undefined_name", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)

			_, err := eng.Eval(context.Background(), tt.write, nil)
			require.NoError(t, err)
			require.Equal(t, 1, eng.idleStates(), "the state is reused")

			res, err := eng.Eval(context.Background(), tt.read, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestEngine_ReleaseContext(t *testing.T) {
	eng := newTestEngine(t)
	ec := scripting.NewExecutionContext(nil)

	_, err := eng.EvalContext(context.Background(), "function f() return 1 end", ec)
	require.NoError(t, err)
	assert.Equal(t, 0, eng.idleStates())

	eng.ReleaseContext(ec)
	assert.Equal(t, 1, eng.idleStates())
	assert.Nil(t, ec.Runtime())

	_, err = eng.InvokeFunction(context.Background(), ec, "f")
	assert.ErrorIs(t, err, ErrLuaNotEvaluated)

	eng.ReleaseContext(ec)
	eng.ReleaseContext(nil)
	assert.Equal(t, 1, eng.idleStates())
}

func TestEngine_InvokeFunction(t *testing.T) {
	eng := newTestEngine(t)
	ec := scripting.NewExecutionContext(scripting.Bindings{"greeting": "hello"})

	_, err := eng.EvalContext(context.Background(), "function greet(n) return greeting .. ' ' .. n end", ec)
	require.NoError(t, err)

	res, err := eng.InvokeFunction(context.Background(), ec, "greet", "Sam")
	require.NoError(t, err)
	assert.Equal(t, "hello Sam", res)

	_, err = eng.InvokeFunction(context.Background(), ec, "missing")
	assert.ErrorIs(t, err, scripting.ErrFunctionNotFound)

	_, err = eng.InvokeFunction(context.Background(), scripting.NewExecutionContext(nil), "greet")
	assert.ErrorIs(t, err, ErrLuaNotEvaluated)
}

func TestEngine_Print(t *testing.T) {
	eng := newTestEngine(t)
	var out bytes.Buffer
	ec := scripting.NewExecutionContext(nil)
	ec.Writer = &out

	_, err := eng.EvalContext(context.Background(), "print('hello', 42)", ec)
	require.NoError(t, err)
	assert.Equal(t, "hello\t42\n", out.String())
}

func TestEngine_RequireUsesBoundLoader(t *testing.T) {
	modules := fstest.MapFS{
		"util/greet.lua": {Data: []byte("local M = {}\nfunction M.hello(n) return 'hi ' .. n end\nreturn M")},
	}
	ctx := scripting.WithLoader(context.Background(), scripting.FSLoader{FS: modules})

	eng, err := New(ctx)
	require.NoError(t, err)
	defer eng.Close()

	res, err := eng.Eval(context.Background(), "return require('util.greet').hello('Sam')", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi Sam", res)

	_, err = newTestEngine(t).Eval(context.Background(), "return require('util.greet')", nil)
	assert.Error(t, err)
}

func TestEngine_WithLibs(t *testing.T) {
	eng := newTestEngine(t, WithLibs())

	res, err := eng.Eval(context.Background(), "return require('crypto').md5('hello')", nil)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", res)

	res, err = eng.Eval(context.Background(), `return require('json').decode('{"a": 1}').a`, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), res)
}

func TestEngine_ContextCancel(t *testing.T) {
	eng := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := eng.Eval(ctx, "while true do end", nil)
	assert.Error(t, err)
}

func TestEngine_Close(t *testing.T) {
	eng, err := New(context.Background())
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	_, err = eng.Eval(context.Background(), "return 1", nil)
	assert.ErrorIs(t, err, ErrLuaPoolClosed)
}
