package lua

import (
	"sync"

	Lua "github.com/yuin/gopher-lua"
)

const defaultMaxSaved = 10

// luaStateArray Lua 状态数组
type luaStateArray []*Lua.LState

// statePool Lua 状态池
//
// 每个状态创建时记录一份初始镜像，归还时恢复：脚本对全局表、库表与元表的修改不会带给下一个借用者。
type statePool struct {
	m        sync.Mutex
	saved    luaStateArray
	images   map[*Lua.LState]*stateImage
	maxSaved int
	closed   bool
	options  Lua.Options
	setup    func(L *Lua.LState) // 新状态创建后调用，用于预加载模块
}

// newStatePool 创建新的 Lua 状态池
func newStatePool(maxSaved int, setup func(L *Lua.LState)) *statePool {
	return newStatePoolWithOptions(maxSaved, Lua.Options{
		CallStackSize:       4096,
		RegistrySize:        4096,
		IncludeGoStackTrace: true,
	}, setup)
}

func newStatePoolWithOptions(maxSaved int, opts Lua.Options, setup func(L *Lua.LState)) *statePool {
	if maxSaved < 0 {
		maxSaved = defaultMaxSaved
	}
	return &statePool{
		saved:    make(luaStateArray, 0, maxSaved),
		images:   make(map[*Lua.LState]*stateImage),
		maxSaved: maxSaved,
		options:  opts,
		setup:    setup,
	}
}

// createLuaState 使用池选项创建新的 Lua 状态实例
func (pl *statePool) createLuaState() *Lua.LState {
	pl.m.Lock()
	opts := pl.options
	pl.m.Unlock()

	L := Lua.NewState(opts)
	if pl.setup != nil {
		pl.setup(L)
	}

	img := takeImage(L)
	pl.m.Lock()
	pl.images[L] = img
	pl.m.Unlock()
	return L
}

// discard 关闭状态并丢弃其镜像
func (pl *statePool) discard(L *Lua.LState) {
	pl.m.Lock()
	delete(pl.images, L)
	pl.m.Unlock()
	L.Close()
}

// Borrow 从池中借用一个 Lua 状态实例；池为空时创建新的
func (pl *statePool) Borrow() (*Lua.LState, error) {
	pl.m.Lock()
	if pl.closed {
		pl.m.Unlock()
		return nil, ErrLuaPoolClosed
	}
	n := len(pl.saved)
	if n > 0 {
		x := pl.saved[n-1]
		pl.saved = pl.saved[:n-1]
		pl.m.Unlock()
		return x, nil
	}
	pl.m.Unlock()

	return pl.createLuaState(), nil
}

// Return 将 Lua 状态实例归还到池中
func (pl *statePool) Return(L *Lua.LState) {
	if L == nil {
		return
	}
	L.SetTop(0)

	pl.m.Lock()
	img := pl.images[L]
	closed := pl.closed
	pl.m.Unlock()

	if closed || img == nil {
		// 池已关闭或状态不属于本池，直接释放 L
		pl.discard(L)
		return
	}
	img.restore(L)

	pl.m.Lock()
	if !pl.closed && len(pl.saved) < pl.maxSaved {
		pl.saved = append(pl.saved, L)
		pl.m.Unlock()
		return
	}
	pl.m.Unlock()

	// 池已满或已关闭，关闭 L 以释放资源
	pl.discard(L)
}

// Idle 返回池中空闲状态数
func (pl *statePool) Idle() int {
	pl.m.Lock()
	defer pl.m.Unlock()
	return len(pl.saved)
}

// Shutdown 关闭状态池中的所有 Lua 状态实例
func (pl *statePool) Shutdown() {
	pl.m.Lock()
	if pl.closed {
		pl.m.Unlock()
		return
	}
	pl.closed = true
	toClose := pl.saved
	pl.saved = nil
	pl.m.Unlock()

	for _, L := range toClose {
		if L != nil {
			pl.discard(L)
		}
	}
}
