package scripting

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FactoryFunc builds an engine. It runs under the registry's Guard, so LoaderFrom(ctx)
// returns the loader the engine should bind for module resolution.
type FactoryFunc func(ctx context.Context) (Engine, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]FactoryFunc)
)

// Register makes an engine factory discoverable. Engine packages call it from init;
// engines registered after the process registry was built are only seen after
// ResetRegistry.
func Register(name string, f FactoryFunc) error {
	if name == "" || f == nil {
		return fmt.Errorf("%w: invalid engine factory", ErrInvalidArgument)
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, ok := factories[name]; ok {
		return fmt.Errorf("script engine factory %s already registered", name)
	}
	factories[name] = f
	return nil
}

func GetFactory(name string) (FactoryFunc, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// ListFactories returns the registered factory names in sorted order.
func ListFactories() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	res := make([]string, 0, len(factories))
	for k := range factories {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

func Unregister(name string) bool {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, ok := factories[name]; ok {
		delete(factories, name)
		return true
	}
	return false
}
