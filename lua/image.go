package lua

import (
	Lua "github.com/yuin/gopher-lua"
)

// tableImage is the recorded content and metatable of one table.
type tableImage struct {
	table *Lua.LTable
	keys  []Lua.LValue
	vals  []Lua.LValue
	meta  Lua.LValue
}

type userDataImage struct {
	ud   *Lua.LUserData
	meta Lua.LValue
}

type builtinImage struct {
	sample Lua.LValue
	meta   Lua.LValue
}

// stateImage is the pristine content of a state: every table reachable from the
// globals and the type metatables, including library tables and package.loaded.
type stateImage struct {
	tables    []tableImage
	userData  []userDataImage
	builtins  []builtinImage
	globalEnv *Lua.LTable
}

func takeImage(L *Lua.LState) *stateImage {
	img := &stateImage{globalEnv: L.G.Global}
	seen := make(map[*Lua.LTable]bool)
	seenUD := make(map[*Lua.LUserData]bool)

	var visit func(v Lua.LValue)
	visit = func(v Lua.LValue) {
		switch t := v.(type) {
		case *Lua.LTable:
			if seen[t] {
				return
			}
			seen[t] = true

			ti := tableImage{table: t, meta: t.Metatable}
			t.ForEach(func(k, val Lua.LValue) {
				ti.keys = append(ti.keys, k)
				ti.vals = append(ti.vals, val)
			})
			img.tables = append(img.tables, ti)

			for i := range ti.keys {
				visit(ti.keys[i])
				visit(ti.vals[i])
			}
			visit(t.Metatable)
		case *Lua.LUserData:
			if seenUD[t] {
				return
			}
			seenUD[t] = true
			img.userData = append(img.userData, userDataImage{ud: t, meta: t.Metatable})
			visit(t.Metatable)
		}
	}

	visit(L.G.Global)
	visit(L.G.Registry)

	for _, sample := range []Lua.LValue{
		Lua.LNil, Lua.LFalse, Lua.LNumber(0), Lua.LString(""),
		L.NewFunction(func(*Lua.LState) int { return 0 }),
	} {
		mt := L.GetMetatable(sample)
		img.builtins = append(img.builtins, builtinImage{sample: sample, meta: mt})
		visit(mt)
	}
	return img
}

// restore puts every recorded table, metatable and the thread environment back.
// Keys added since the image was taken are removed.
func (img *stateImage) restore(L *Lua.LState) {
	for _, ti := range img.tables {
		var current []Lua.LValue
		ti.table.ForEach(func(k, _ Lua.LValue) {
			current = append(current, k)
		})
		for _, k := range current {
			ti.table.RawSet(k, Lua.LNil)
		}
		for i, k := range ti.keys {
			ti.table.RawSet(k, ti.vals[i])
		}
		ti.table.Metatable = ti.meta
	}
	for _, ui := range img.userData {
		ui.ud.Metatable = ui.meta
	}
	for _, bi := range img.builtins {
		L.SetMetatable(bi.sample, bi.meta)
	}
	L.Env = img.globalEnv
}
