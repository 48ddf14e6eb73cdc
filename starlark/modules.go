package starlark

import (
	"maps"

	starlarkJSON "go.starlark.net/lib/json"
	starlarkMath "go.starlark.net/lib/math"
	starlarkTime "go.starlark.net/lib/time"
	starlarkLib "go.starlark.net/starlark"
)

const (
	namespaceJSON = "json"
	namespaceMath = "math"
	namespaceTime = "time"
)

// standardModules returns the modules predeclared in every evaluation.
func standardModules() starlarkLib.StringDict {
	return starlarkLib.StringDict{
		namespaceJSON: starlarkJSON.Module,
		namespaceMath: starlarkMath.Module,
		namespaceTime: starlarkTime.Module,
	}
}

// isPredeclared treats every name outside the universe as predeclared, so a
// program compiles before the bindings it reads are known.
func isPredeclared(name string) bool {
	return !starlarkLib.Universe.Has(name)
}

// predeclared merges modules, previously defined globals and bindings, in that order.
func predeclared(modules, globals starlarkLib.StringDict, bindings starlarkLib.StringDict) starlarkLib.StringDict {
	merged := make(starlarkLib.StringDict, len(modules)+len(globals)+len(bindings))
	maps.Copy(merged, modules)
	maps.Copy(merged, globals)
	maps.Copy(merged, bindings)
	return merged
}
