package lua

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tengattack/gluacrypto"
	libs "github.com/vadv/gopher-lua-libs"
	Lua "github.com/yuin/gopher-lua"

	scripting "github.com/tx7do/go-scripting-provider"
)

// preloadLibs 预加载 gopher-lua-libs 与 crypto 模块，脚本可通过 require 使用
func preloadLibs(L *Lua.LState) {
	libs.Preload(L)
	gluacrypto.Preload(L)
}

// moduleFile maps a module name to the path handed to the loader: "a.b" -> "a/b.lua".
func moduleFile(name string) string {
	return strings.ReplaceAll(name, ".", "/") + ".lua"
}

// installLoader appends a package.loaders entry resolving modules through l.
func installLoader(L *Lua.LState, l scripting.Loader) {
	pkg, ok := L.GetGlobal("package").(*Lua.LTable)
	if !ok {
		return
	}
	loaders, ok := L.GetField(pkg, "loaders").(*Lua.LTable)
	if !ok {
		return
	}

	loaders.Append(L.NewFunction(func(L *Lua.LState) int {
		name := L.CheckString(1)
		file := moduleFile(name)
		src, err := l.Load(file)
		if err != nil {
			L.Push(Lua.LString(fmt.Sprintf("\n\tno module '%s' in scripting loader", file)))
			return 1
		}
		fn, err := L.Load(bytes.NewReader(src), file)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(fn)
		return 1
	}))
}
