package js

import "errors"

var (
	// ErrJavascriptCompileFailed JavaScript 源码编译失败
	ErrJavascriptCompileFailed = errors.New("javascript compile failed")

	// ErrJavascriptExecutionFailed JavaScript 执行失败
	ErrJavascriptExecutionFailed = errors.New("javascript execution failed")

	// ErrJavascriptNotEvaluated the execution context carries no runtime of this engine
	ErrJavascriptNotEvaluated = errors.New("javascript context not evaluated")

	ErrJavascriptNilContext = errors.New("javascript execution context is nil")
)
