package lua

import "errors"

var (
	// ErrLuaNotEvaluated the execution context carries no state of this engine
	ErrLuaNotEvaluated = errors.New("lua context not evaluated")

	// ErrLuaNilContext Lua 执行上下文为空
	ErrLuaNilContext = errors.New("lua execution context is nil")

	// ErrLuaPoolClosed Lua 状态池已关闭
	ErrLuaPoolClosed = errors.New("lua state pool closed")
)
