package lua

import (
	"fmt"
	"slices"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stepdb/internal/debugger"
)

// Evaluate evaluates expr in the scope of the frame.
//
// expr is compiled as "return expr" first and as a statement when that
// fails, so both "x + 1" and "x = 1" work. The code sees the frame's locals
// and upvalues, falling back to its globals. Assigning a local or upvalue
// changes it in the running program; other assignments go to the globals.
// Instrumented functions it calls report events as usual.
func (f *frame) Evaluate(expr string) (debugger.Value, error) {
	h := f.host
	L := h.L
	if L == nil {
		return nil, ErrNotRunning
	}

	fn, err := L.LoadString("return " + expr)
	if err != nil {
		var serr error
		fn, serr = L.LoadString(expr)
		if serr != nil {
			return nil, &SyntaxError{Chunk: "expression", Err: err}
		}
	}
	L.SetFEnv(fn, f.evalEnv(L))

	top := L.GetTop()
	depth := len(h.stack)
	L.Push(fn)
	err = L.PCall(0, 1, nil)
	if err != nil {
		h.unwind(depth)
		L.SetTop(top)
		if aerr, ok := err.(*lua.ApiError); ok {
			return nil, fmt.Errorf("%s", errorMessage(L, aerr.Object))
		}
		return nil, err
	}
	v := L.Get(-1)
	L.SetTop(top)
	return NewValue(v), nil
}

// evalEnv builds the environment of an evaluation. The frame's locals and
// upvalues are read and assigned in place; every other name goes to the
// frame's globals.
func (f *frame) evalEnv(L *lua.LState) *lua.LTable {
	locals := slices.Clone(f.locals())
	bound := make(map[string]int, len(locals))
	for i, l := range locals {
		bound[l.name] = i
	}
	lookup := func(key lua.LValue) (*local, bool) {
		name, ok := key.(lua.LString)
		if !ok {
			return nil, false
		}
		i, ok := bound[string(name)]
		if !ok {
			return nil, false
		}
		return &locals[i], true
	}
	globals := f.env()

	mt := L.NewTable()
	mt.RawSetString("__index", L.NewFunction(func(L *lua.LState) int {
		key := L.Get(2)
		switch l, ok := lookup(key); {
		case ok:
			L.Push(l.value)
		case globals != nil:
			L.Push(L.GetTable(globals, key))
		default:
			L.Push(lua.LNil)
		}
		return 1
	}))
	mt.RawSetString("__newindex", L.NewFunction(func(L *lua.LState) int {
		key, value := L.Get(2), L.Get(3)
		switch l, ok := lookup(key); {
		case ok:
			f.assign(L, l, value)
		case globals != nil:
			L.SetTable(globals, key, value)
		default:
			L.RaiseError("no environment to assign %s", key.String())
		}
		return 0
	}))

	env := L.NewTable()
	L.SetMetatable(env, mt)
	return env
}

// assign writes v to a local or upvalue of the frame. An unwound frame only
// has its snapshot updated.
func (f *frame) assign(L *lua.LState, l *local, v lua.LValue) {
	l.value = v
	switch {
	case f.dead:
		for i := range f.snapshot {
			if f.snapshot[i].name == l.name {
				f.snapshot[i].value = v
			}
		}
	case l.upvalue:
		L.SetUpvalue(f.fn, l.index, v)
	default:
		L.SetLocal(f.dbg, l.index, v)
	}
}
