package lua

import (
	"fmt"

	"github.com/yuin/gluamapper"
	Lua "github.com/yuin/gopher-lua"
	luar "layeh.com/gopher-luar"
)

var mapperOption = gluamapper.Option{NameFunc: gluamapper.Id}

// toLValue converts a host value; maps, slices, structs and funcs become luar proxies.
func toLValue(L *Lua.LState, v any) Lua.LValue {
	if lv, ok := v.(Lua.LValue); ok {
		return lv
	}
	return luar.New(L, v)
}

// fromLValue converts a Lua value to Go: numbers become float64, tables become
// map[string]any or []any.
func fromLValue(lv Lua.LValue) any {
	switch v := lv.(type) {
	case nil, *Lua.LNilType:
		return nil
	case Lua.LBool:
		return bool(v)
	case Lua.LNumber:
		return float64(v)
	case Lua.LString:
		return string(v)
	case *Lua.LUserData:
		return v.Value
	case *Lua.LTable:
		return normalize(gluamapper.ToGoValue(v, mapperOption))
	default:
		return lv
	}
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case *Lua.LUserData:
		return t.Value
	case []interface{}:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	default:
		return v
	}
}
