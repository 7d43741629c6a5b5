package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// moduleName is the Lua module programs require to talk to the debugger:
//
//	local stepdb = require("stepdb")
//	stepdb.set_trace()
const moduleName = "stepdb"

func (h *Host) openModule(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"set_trace": h.luaSetTrace,
		"active":    h.luaActive,
	})
	L.Push(mod)
	return 1
}

// luaSetTrace stops the program at the calling function's next line. The
// location is remembered, so an operator can disarm it.
func (h *Host) luaSetTrace(L *lua.LState) int {
	f := h.top()
	if L != h.L || f == nil {
		return 0
	}
	if h.onSetTrace == nil {
		h.logger.Warn("set_trace at %s:%d ignored: no debugger attached", f.File(), f.Line())
		return 0
	}
	h.onSetTrace(f, true)
	return 0
}

// luaActive reports whether the program is currently traced.
func (h *Host) luaActive(L *lua.LState) int {
	L.Push(lua.LBool(h.Tracing()))
	return 1
}
