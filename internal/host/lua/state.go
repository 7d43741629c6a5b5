package lua

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// newState creates a Lua state with the standard libraries, the
// instrumentation hooks, and loaders that instrument everything they load.
// The hooks are handed to each chunk as it is loaded and never enter the
// global table.
func (h *Host) newState() *lua.LState {
	L := lua.NewState(lua.Options{
		CallStackSize: h.callStackSize,
	})

	h.baseline = globalNames(L)
	h.baseline["arg"] = true

	h.hooks = []lua.LValue{
		L.NewFunction(h.hookCall),
		L.NewFunction(h.hookLine),
		L.NewFunction(h.hookReturn),
		L.NewFunction(h.hookTail),
	}

	L.SetGlobal("print", L.NewFunction(h.print))
	L.SetGlobal("pcall", L.NewFunction(h.pcall))
	L.SetGlobal("xpcall", L.NewFunction(h.xpcall))
	L.SetGlobal("loadstring", L.NewFunction(h.loadstring))
	L.SetGlobal("load", L.NewFunction(h.load))
	L.SetGlobal("loadfile", L.NewFunction(h.loadfile))
	L.SetGlobal("dofile", L.NewFunction(h.dofile))

	h.installSearcher(L)
	L.PreloadModule(moduleName, h.openModule)

	return L
}

func globalNames(L *lua.LState) map[string]bool {
	names := make(map[string]bool)
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			names[string(s)] = true
		}
	})
	return names
}

// loadFile reads, instruments and compiles the Lua file at path.
func (h *Host) loadFile(L *lua.LState, path string) (*lua.LFunction, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return h.compile(L, string(src), h.canon.Canonical(path), true)
}

// compile instruments and compiles src as a chunk named name.
func (h *Host) compile(L *lua.LState, src, name string, isFile bool) (*lua.LFunction, error) {
	stmts, err := parse.Parse(strings.NewReader(stripShebang(src)), name)
	if err != nil {
		return nil, &SyntaxError{Chunk: name, Err: err}
	}

	c := &chunk{name: name, isFile: isFile}
	if !isFile {
		c.text = src
	}
	h.chunks = append(h.chunks, c)

	proto, err := lua.Compile(instrument(stmts, len(h.chunks)-1), name)
	if err != nil {
		return nil, &SyntaxError{Chunk: name, Err: err}
	}
	fn, err := bindHooks(L, L.NewFunctionFromProto(proto), h.hooks...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	h.logger.Debug("loaded chunk %s", name)
	return fn, nil
}

// stripShebang blanks a leading "#!" line, keeping line numbers.
func stripShebang(src string) string {
	if !strings.HasPrefix(src, "#") {
		return src
	}
	if i := strings.IndexByte(src, '\n'); i >= 0 {
		return src[i:]
	}
	return ""
}

// chunkName maps a Lua chunk name to a pseudo file name such as "<string>".
func chunkName(name string) string {
	switch {
	case name == "":
		return "<string>"
	case strings.HasPrefix(name, "=") || strings.HasPrefix(name, "@"):
		return "<" + name[1:] + ">"
	case strings.HasPrefix(name, "<") && strings.HasSuffix(name, ">"):
		return name
	default:
		return "<" + name + ">"
	}
}

func (h *Host) print(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		if i > 1 {
			fmt.Fprint(h.stdout, "\t")
		}
		fmt.Fprint(h.stdout, L.ToStringMeta(L.Get(i)).String())
	}
	fmt.Fprintln(h.stdout)
	return 0
}

func (h *Host) loadstring(L *lua.LState) int {
	src := L.CheckString(1)
	return h.pushChunk(L, src, chunkName(L.OptString(2, "")))
}

// load accepts a string or a reader function returning pieces.
func (h *Host) load(L *lua.LState) int {
	var src string
	switch v := L.Get(1).(type) {
	case lua.LString:
		src = string(v)
	case *lua.LFunction:
		var b strings.Builder
		for {
			L.Push(v)
			L.Call(0, 1)
			piece := L.Get(-1)
			L.Pop(1)
			s, ok := piece.(lua.LString)
			if !ok || s == "" {
				break
			}
			b.WriteString(string(s))
		}
		src = b.String()
	default:
		L.ArgError(1, "string or function expected")
		return 0
	}
	return h.pushChunk(L, src, chunkName(L.OptString(2, "")))
}

func (h *Host) pushChunk(L *lua.LState, src, name string) int {
	fn, err := h.compile(L, src, name, false)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(fn)
	return 1
}

func (h *Host) loadfile(L *lua.LState) int {
	path := L.CheckString(1)
	fn, err := h.loadFile(L, path)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(fn)
	return 1
}

func (h *Host) dofile(L *lua.LState) int {
	path := L.CheckString(1)
	top := L.GetTop()
	fn, err := h.loadFile(L, path)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(fn)
	L.Call(0, lua.MultRet)
	return L.GetTop() - top
}

// installSearcher replaces the Lua file searcher of require so modules are
// instrumented too.
func (h *Host) installSearcher(L *lua.LState) {
	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return
	}
	loaders, ok := pkg.RawGetString("loaders").(*lua.LTable)
	if !ok {
		return
	}
	loaders.RawSetInt(2, L.NewFunction(h.searchLua))
}

func (h *Host) searchLua(L *lua.LState) int {
	name := L.CheckString(1)
	path, tried := findModule(L, name)
	if path == "" {
		L.Push(lua.LString(tried))
		return 1
	}
	fn, err := h.loadFile(L, path)
	if err != nil {
		L.RaiseError("error loading module '%s' from file '%s':\n\t%v", name, path, err)
		return 0
	}
	L.Push(fn)
	return 1
}

// findModule resolves a module name against package.path. On failure it
// returns the list of tried files in the format require reports.
func findModule(L *lua.LState, name string) (string, string) {
	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return "", ""
	}
	rel := strings.ReplaceAll(name, ".", string(filepath.Separator))

	var tried strings.Builder
	for _, pattern := range strings.Split(lua.LVAsString(pkg.RawGetString("path")), ";") {
		if pattern == "" {
			continue
		}
		candidate := strings.ReplaceAll(pattern, "?", rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, ""
		}
		fmt.Fprintf(&tried, "\n\tno file '%s'", candidate)
	}
	return "", tried.String()
}

// setPackagePath puts the program's directory first on package.path.
func setPackagePath(L *lua.LState, dir string) {
	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return
	}
	local := filepath.Join(dir, "?.lua") + ";" + filepath.Join(dir, "?", "init.lua")
	pkg.RawSetString("path", lua.LString(local+";"+lua.LVAsString(pkg.RawGetString("path"))))
}
