package scripting_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scripting "github.com/tx7do/go-scripting-provider"
	_ "github.com/tx7do/go-scripting-provider/javascript"
	_ "github.com/tx7do/go-scripting-provider/lua"
	_ "github.com/tx7do/go-scripting-provider/starlark"
)

func newProvider(t *testing.T) *scripting.Provider {
	t.Helper()
	scripting.ResetRegistry()
	t.Cleanup(scripting.ResetRegistry)

	p, err := scripting.New(context.Background())
	require.NoError(t, err)
	return p
}

func TestProvider_DiscoversEngines(t *testing.T) {
	p := newProvider(t)

	for _, name := range []string{"goja", "gopher-lua", "starlark", "js", "lua", "star"} {
		_, ok := p.Registry().EngineByName(name)
		assert.True(t, ok, name)
	}
}

func TestProvider_JavaScriptScenarios(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	t.Run("evaluate expression", func(t *testing.T) {
		es, err := p.PrepareEvaluatableScript(ctx, p.CreateScript("master", scripting.MimeTypeJavaScript, "sum", "1+1", ""))
		require.NoError(t, err)
		assert.Equal(t, scripting.ModeCompiled, es.Mode())

		res, err := es.Evaluate(ctx, scripting.Bindings{})
		require.NoError(t, err)
		assert.EqualValues(t, 2, res)
	})

	t.Run("invoke function", func(t *testing.T) {
		inv, err := p.PrepareInvocableScript(ctx,
			p.CreateScript("master", scripting.MimeTypeJavaScript, "greeter", "function greet(n){ return 'hi ' + n; }", ""),
			scripting.NoBindings)
		require.NoError(t, err)

		res, err := inv.Call(ctx, "greet", "Sam")
		require.NoError(t, err)
		assert.Equal(t, "hi Sam", res)
	})

	t.Run("configured bindings", func(t *testing.T) {
		inv, err := p.PrepareInvocableScript(ctx,
			p.CreateScript("master", scripting.MimeTypeJavaScript, "compute", "function compute(){ return x + 1; }", ""),
			scripting.StaticBindings(map[string]any{"x": 42}))
		require.NoError(t, err)

		res, err := inv.Call(ctx, "compute")
		require.NoError(t, err)
		assert.EqualValues(t, 43, res)

		_, err = inv.Call(ctx, "missing")
		assert.ErrorIs(t, err, scripting.ErrEvaluationFailed)
		assert.ErrorIs(t, err, scripting.ErrFunctionNotFound)
	})

	t.Run("blank code", func(t *testing.T) {
		_, err := p.PrepareEvaluatableScript(ctx, p.CreateScript("master", scripting.MimeTypeJavaScript, "blank", "", ""))
		assert.ErrorIs(t, err, scripting.ErrInvalidArgument)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := p.PrepareEvaluatableScript(ctx, p.CreateScript("master", scripting.MimeTypeJavaScript, "broken", "function(", ""))
		require.Error(t, err)
		assert.ErrorIs(t, err, scripting.ErrCompilationFailed)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("unknown language", func(t *testing.T) {
		_, err := p.PrepareEvaluatableScript(ctx, p.CreateScript("master", "application/unknown-lang", "unknown", "x", ""))
		assert.ErrorIs(t, err, scripting.ErrEngineNotFound)
	})

	t.Run("runtime error", func(t *testing.T) {
		es, err := p.PrepareEvaluatableScript(ctx, p.CreateScript("master", scripting.MimeTypeJavaScript, "undefined", "notDefined + 1", ""))
		require.NoError(t, err)
		_, err = es.Evaluate(ctx, nil)
		assert.ErrorIs(t, err, scripting.ErrEvaluationFailed)
	})
}

func TestProvider_Lua(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	es, err := p.PrepareEvaluatableScript(ctx, p.CreateScript("master", scripting.MimeTypeLua, "sum", "return x + 1", ""))
	require.NoError(t, err)
	assert.Equal(t, scripting.ModeInterpreted, es.Mode())

	res, err := es.Evaluate(ctx, scripting.Bindings{"x": 42})
	require.NoError(t, err)
	assert.EqualValues(t, 43, res)

	inv, err := p.PrepareInvocableScript(ctx,
		p.CreateScript("master", "application/x-lua", "compute", "function compute() return x + 1 end", ""),
		scripting.StaticBindings(map[string]any{"x": 42}))
	require.NoError(t, err)
	res, err = inv.Call(ctx, "compute")
	require.NoError(t, err)
	assert.EqualValues(t, 43, res)

	require.NoError(t, inv.Close())
	assert.Nil(t, inv.Context().Runtime(), "the state is handed back to the engine")
	_, err = inv.Call(ctx, "compute")
	assert.ErrorIs(t, err, scripting.ErrScriptClosed)
}

func TestProvider_Starlark(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	es, err := p.PrepareEvaluatableScript(ctx, p.CreateScript("master", scripting.MimeTypeStarlark, "sum", "x + 1", ""))
	require.NoError(t, err)
	assert.Equal(t, scripting.ModeCompiled, es.Mode())

	res, err := es.Evaluate(ctx, scripting.Bindings{"x": 42})
	require.NoError(t, err)
	assert.EqualValues(t, 43, res)

	_, err = p.PrepareEvaluatableScript(ctx, p.CreateScript("master", scripting.MimeTypeStarlark, "broken", "def f(:", ""))
	assert.ErrorIs(t, err, scripting.ErrCompilationFailed)
}

func TestProvider_ModuleLoader(t *testing.T) {
	scripting.SetModuleLoader(scripting.FSLoader{FS: fstest.MapFS{
		"greeting.js": {Data: []byte("module.exports = function (n) { return 'hi ' + n; };")},
	}})
	t.Cleanup(func() { scripting.SetModuleLoader(nil) })
	p := newProvider(t)

	es, err := p.PrepareEvaluatableScript(context.Background(),
		p.CreateScript("master", scripting.MimeTypeJavaScript, "req", "require('./greeting.js')('Sam')", ""))
	require.NoError(t, err)

	res, err := es.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "hi Sam", res)
}

func TestProvider_EvaluateContextOutput(t *testing.T) {
	p := newProvider(t)

	es, err := p.PrepareEvaluatableScript(context.Background(), p.CreateScript("master", scripting.MimeTypeJavaScript, "print", "print('hello ' + who)", ""))
	require.NoError(t, err)

	var out bytes.Buffer
	ec := scripting.NewExecutionContext(scripting.Bindings{"who": "world"})
	ec.Writer = &out
	_, err = es.EvaluateContext(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out.String())
}

func TestProvider_ConcurrentPool(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	pool, err := p.NewInvocablePool(ctx,
		p.CreateScript("master", scripting.MimeTypeJavaScript, "counter", "var n = 0; function next() { n += 1; return n; }", ""),
		scripting.NoBindings, 1, 4)
	require.NoError(t, err)
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := pool.Call(ctx, "next")
			assert.NoError(t, err)
			assert.NotNil(t, res)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, pool.Size(), 4)
}
