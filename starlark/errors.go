package starlark

import "errors"

var ErrStarlarkCompileFailed = errors.New("starlark compile failed")
var ErrStarlarkNotEvaluated = errors.New("starlark context not evaluated")
var ErrStarlarkNilContext = errors.New("starlark execution context is nil")
var ErrLoadCycle = errors.New("starlark load cycle")
