package scripting

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/go-kratos/kratos/v2/log"
)

// Loader resolves module sources by name for engines (`require` in JavaScript and
// Lua, `load` in Starlark). It is the ambient lookup context engines consult while
// they are discovered, looked up or compile source.
type Loader interface {
	Load(name string) ([]byte, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(name string) ([]byte, error)

func (f LoaderFunc) Load(name string) ([]byte, error) { return f(name) }

// FSLoader loads modules from a file system.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Load(name string) ([]byte, error) {
	if l.FS == nil {
		return nil, fs.ErrNotExist
	}
	return fs.ReadFile(l.FS, name)
}

type emptyLoader struct{}

func (emptyLoader) Load(name string) ([]byte, error) {
	return nil, fmt.Errorf("module %q: %w", name, fs.ErrNotExist)
}

// EmptyLoader resolves no module at all.
var EmptyLoader Loader = emptyLoader{}

type loaderKey struct{}

// WithLoader returns a copy of ctx carrying l as the ambient loader.
func WithLoader(ctx context.Context, l Loader) context.Context {
	return context.WithValue(ctx, loaderKey{}, l)
}

// LoaderFrom returns the ambient loader of ctx, or EmptyLoader.
func LoaderFrom(ctx context.Context) Loader {
	if l, ok := ctx.Value(loaderKey{}).(Loader); ok && l != nil {
		return l
	}
	return EmptyLoader
}

// Guard runs actions with the core's own loader installed in place of whatever
// loader the caller's context carries.
//
// The caller's context is never modified, so once Run returns, by error or by
// panic, the caller observes exactly the loader it had before. The derived context
// is cancelled on every exit path, which releases anything an engine bound to it.
type Guard struct {
	loader Loader
	log    *log.Helper
}

// NewGuard creates a Guard installing l; a nil l installs EmptyLoader.
func NewGuard(l Loader, logger log.Logger) *Guard {
	if l == nil {
		l = EmptyLoader
	}
	return &Guard{
		loader: l,
		log:    newHelper(logger, "scripting/guard"),
	}
}

// Loader returns the loader installed by Run.
func (g *Guard) Loader() Loader {
	return g.loader
}

// Run executes action with the guard's loader installed.
func (g *Guard) Run(ctx context.Context, action func(ctx context.Context) error) error {
	inner, cancel := context.WithCancel(WithLoader(ctx, g.loader))
	defer cancel()

	if err := action(inner); err != nil {
		g.log.Debugf("guarded action failed: %v", err)
		return err
	}
	return nil
}

// guarded runs fn under g and returns its value.
func guarded[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Run(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
