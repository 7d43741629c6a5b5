package lua

import (
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stepdb/internal/debugger"
)

// chunk is a loaded, instrumented piece of Lua code.
type chunk struct {
	// name is the canonical file path, or a pseudo name like "<string>".
	name string
	// text is kept for chunks that do not come from a file.
	text   string
	isFile bool
}

// local is a visible variable of a frame: the index-th local, or upvalue
// of the running function.
type local struct {
	name    string
	value   lua.LValue
	index   int
	upvalue bool
}

// frame is one activation of an instrumented Lua function.
//
// A frame is live between its call and return hooks. Its locals are read
// from the Lua stack while it is live; frames unwound by an error keep a
// snapshot taken before the stack was reset.
type frame struct {
	host      *Host
	chunk     *chunk
	function  string
	line      int
	firstLine int
	caller    *frame

	dbg *lua.Debug
	fn  *lua.LFunction

	trace    debugger.TraceFunc
	dead     bool
	snapshot []local
}

var _ debugger.Frame = (*frame)(nil)

func (f *frame) File() string     { return f.chunk.name }
func (f *frame) Function() string { return f.function }
func (f *frame) Line() int        { return f.line }
func (f *frame) FirstLine() int   { return f.firstLine }

func (f *frame) Caller() debugger.Frame {
	if f.caller == nil {
		return nil
	}
	return f.caller
}

// Code returns the function prototype, shared by every activation of the
// same function.
func (f *frame) Code() any {
	if f.fn == nil || f.fn.Proto == nil {
		return f.chunk
	}
	return f.fn.Proto
}

func (f *frame) ModuleSource() (string, bool) {
	if f.chunk.isFile {
		return "", false
	}
	return f.chunk.text, true
}

func (f *frame) Locals() []debugger.Binding {
	locals := f.locals()
	out := make([]debugger.Binding, 0, len(locals))
	for _, l := range locals {
		out = append(out, debugger.Binding{Name: l.name, Value: NewValue(l.value)})
	}
	return out
}

// Globals lists the program's own globals: names the standard libraries
// and the host did not define.
func (f *frame) Globals() []debugger.Binding {
	env := f.env()
	if env == nil {
		return nil
	}
	var out []debugger.Binding
	env.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok || f.host.baseline[string(name)] {
			return
		}
		out = append(out, debugger.Binding{Name: string(name), Value: NewValue(v)})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// env returns the function environment of the frame.
func (f *frame) env() *lua.LTable {
	if f.fn != nil && f.fn.Env != nil {
		return f.fn.Env
	}
	if L := f.host.L; L != nil {
		return L.G.Global
	}
	return nil
}

// locals returns the visible locals and upvalues, innermost declaration
// last. Compiler temporaries and hooks are hidden.
func (f *frame) locals() []local {
	if f.dead {
		return f.snapshot
	}
	L := f.host.L
	if L == nil || f.dbg == nil {
		return nil
	}

	var out []local
	if f.fn != nil {
		for i := 1; ; i++ {
			name, v := L.GetUpvalue(f.fn, i)
			if name == "" {
				break
			}
			if visibleName(name) {
				out = append(out, local{name: name, value: v, index: i, upvalue: true})
			}
		}
	}
	for i := 1; ; i++ {
		name, v := L.GetLocal(f.dbg, i)
		if name == "" {
			break
		}
		if visibleName(name) {
			out = append(out, local{name: name, value: v, index: i})
		}
	}
	return shadow(out)
}

// capture snapshots the locals of a frame about to be unwound.
func (f *frame) capture() {
	if f.dead {
		return
	}
	f.snapshot = f.locals()
}

func visibleName(name string) bool {
	return !strings.HasPrefix(name, "(") && !isHookName(name)
}

// shadow drops bindings hidden by a later binding of the same name.
func shadow(locals []local) []local {
	last := make(map[string]int, len(locals))
	for i, l := range locals {
		last[l.name] = i
	}
	out := make([]local, 0, len(last))
	for i, l := range locals {
		if last[l.name] == i {
			out = append(out, l)
		}
	}
	return out
}
