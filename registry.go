package scripting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-kratos/kratos/v2/log"
)

// Registry holds the available engines keyed by name (and aliases) and by MIME type.
// It is read-only once built and safe for concurrent lookups.
type Registry struct {
	mu      sync.RWMutex
	engines []Engine
	byName  map[string]Engine
	byMime  map[string]Engine
	loader  Loader
}

// NewRegistry returns an empty registry whose guard installs loader.
func NewRegistry(loader Loader) *Registry {
	if loader == nil {
		loader = EmptyLoader
	}
	return &Registry{
		byName: make(map[string]Engine),
		byMime: make(map[string]Engine),
		loader: loader,
	}
}

// Register adds an engine. Names must be unique; when two engines advertise the same
// MIME type the first one registered keeps it.
func (r *Registry) Register(eng Engine) error {
	if eng == nil || eng.Name() == "" {
		return fmt.Errorf("%w: invalid engine", ErrInvalidArgument)
	}

	names := append([]string{eng.Name()}, eng.Aliases()...)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if _, ok := r.byName[n]; ok {
			return fmt.Errorf("script engine %s already registered", n)
		}
	}
	for _, n := range names {
		r.byName[n] = eng
	}
	for _, m := range eng.MimeTypes() {
		m = normalizeMimeType(m)
		if _, ok := r.byMime[m]; !ok {
			r.byMime[m] = eng
		}
	}
	r.engines = append(r.engines, eng)
	return nil
}

// EngineByName returns the engine registered under name or one of its aliases.
func (r *Registry) EngineByName(name string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.byName[name]
	return eng, ok
}

// EngineByMimeType returns the first engine advertising mimeType. Parameters such
// as "; charset=utf-8" are ignored.
func (r *Registry) EngineByMimeType(mimeType string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eng, ok := r.byMime[normalizeMimeType(mimeType)]
	return eng, ok
}

// Engines returns the engines in registration order.
func (r *Registry) Engines() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Engine, len(r.engines))
	copy(out, r.engines)
	return out
}

// Loader returns the loader engines of this registry are bound to.
func (r *Registry) Loader() Loader {
	return r.loader
}

// Close closes every engine that holds resources (io.Closer), in reverse
// registration order.
func (r *Registry) Close() error {
	engines := r.Engines()
	var errs []error
	for i := len(engines) - 1; i >= 0; i-- {
		if c, ok := engines[i].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close engine %s: %w", engines[i].Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func normalizeMimeType(m string) string {
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = m[:i]
	}
	return strings.ToLower(strings.TrimSpace(m))
}

// Discover builds a registry from every registered factory, in name order. The
// factories run under a guard installing loader.
func Discover(ctx context.Context, loader Loader, logger log.Logger) (*Registry, error) {
	helper := newHelper(logger, "scripting/registry")

	if err := ensureCompatDefault(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	reg := NewRegistry(loader)
	guard := NewGuard(reg.loader, logger)

	err := guard.Run(ctx, func(ctx context.Context) error {
		for _, name := range ListFactories() {
			f, ok := GetFactory(name)
			if !ok {
				continue
			}
			eng, err := f(ctx)
			if err != nil {
				return fmt.Errorf("%w: engine %s: %w", ErrInitializationFailed, name, err)
			}
			if err = reg.Register(eng); err != nil {
				return fmt.Errorf("%w: engine %s: %w", ErrInitializationFailed, name, err)
			}
			helper.Infof("script engine %s discovered, mime types %v", eng.Name(), eng.MimeTypes())
		}
		return nil
	})
	if err != nil {
		helper.Errorf("script engine discovery failed: %v", err)
		return nil, err
	}
	return reg, nil
}

//////////////////////////////////////////////////////////////////////////////////////////
// Process registry
//////////////////////////////////////////////////////////////////////////////////////////

type registryCell struct {
	once sync.Once
	reg  *Registry
	err  error
}

var (
	processRegistry atomic.Pointer[registryCell]
	moduleLoader    atomic.Value // Loader
)

func init() {
	processRegistry.Store(new(registryCell))
	moduleLoader.Store(loaderBox{EmptyLoader})
}

type loaderBox struct{ Loader }

// SetModuleLoader sets the loader the process registry binds its engines to. It only
// affects registries built afterwards.
func SetModuleLoader(l Loader) {
	if l == nil {
		l = EmptyLoader
	}
	moduleLoader.Store(loaderBox{l})
}

// GetRegistry returns the process registry, discovering engines on the first call.
// Concurrent first callers block until the single construction completes. A failed
// construction is returned to every later caller until ResetRegistry.
func GetRegistry(ctx context.Context) (*Registry, error) {
	cell := processRegistry.Load()
	cell.once.Do(func() {
		l := moduleLoader.Load().(loaderBox).Loader
		cell.reg, cell.err = Discover(context.WithoutCancel(ctx), l, nil)
	})
	return cell.reg, cell.err
}

// ResetRegistry drops the process registry so the next GetRegistry rebuilds it,
// closing the engines of the dropped one. Intended for tests.
func ResetRegistry() {
	old := processRegistry.Swap(new(registryCell))
	old.once.Do(func() {}) // wait for an in-flight construction
	if old.reg != nil {
		if err := old.reg.Close(); err != nil {
			log.Warnf("close script engine registry: %v", err)
		}
	}
}
