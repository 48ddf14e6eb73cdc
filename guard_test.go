package scripting

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_Run(t *testing.T) {
	core := &recordingLoader{name: "core"}
	caller := &recordingLoader{name: "caller"}
	g := NewGuard(core, nil)
	assert.Same(t, core, g.Loader())

	ctx := WithLoader(context.Background(), caller)

	t.Run("success", func(t *testing.T) {
		var inner context.Context
		err := g.Run(ctx, func(ctx context.Context) error {
			inner = ctx
			assert.Same(t, core, LoaderFrom(ctx))
			return nil
		})
		require.NoError(t, err)
		assert.Same(t, caller, LoaderFrom(ctx))
		assert.ErrorIs(t, inner.Err(), context.Canceled)
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		err := g.Run(ctx, func(context.Context) error { return boom })
		assert.Same(t, boom, err)
		assert.Same(t, caller, LoaderFrom(ctx))
	})

	t.Run("panic", func(t *testing.T) {
		var inner context.Context
		assert.Panics(t, func() {
			_ = g.Run(ctx, func(ctx context.Context) error {
				inner = ctx
				panic("boom")
			})
		})
		assert.Same(t, caller, LoaderFrom(ctx))
		assert.ErrorIs(t, inner.Err(), context.Canceled)
	})

	t.Run("caller without loader", func(t *testing.T) {
		bare := context.Background()
		require.NoError(t, g.Run(bare, func(ctx context.Context) error {
			assert.Same(t, core, LoaderFrom(ctx))
			return nil
		}))
		assert.Equal(t, EmptyLoader, LoaderFrom(bare))
	})
}

func TestGuarded(t *testing.T) {
	g := NewGuard(nil, nil)
	assert.Equal(t, EmptyLoader, g.Loader())

	v, err := guarded(context.Background(), g, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestLoaders(t *testing.T) {
	_, err := EmptyLoader.Load("x.js")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	l := FSLoader{FS: fstest.MapFS{"a.js": {Data: []byte("a")}}}
	src, err := l.Load("a.js")
	require.NoError(t, err)
	assert.Equal(t, "a", string(src))

	_, err = FSLoader{}.Load("a.js")
	assert.Error(t, err)

	fn := LoaderFunc(func(name string) ([]byte, error) { return []byte(name), nil })
	src, err = fn.Load("b")
	require.NoError(t, err)
	assert.Equal(t, "b", string(src))
}
