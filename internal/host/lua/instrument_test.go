package lua

import (
	"reflect"
	"strings"
	"testing"

	glua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

type hookLog struct {
	calls   []string
	firsts  []int
	lines   []int
	returns int
	tails   int
}

// runInstrumented compiles src with instrumentation and runs it in a plain
// state whose hooks only record what they see.
func runInstrumented(t *testing.T, src string) (*hookLog, []glua.LValue) {
	t.Helper()
	stmts, err := parse.Parse(strings.NewReader(src), "test")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	proto, err := glua.Compile(instrument(stmts, 0), "test")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	L := glua.NewState()
	defer L.Close()

	log := &hookLog{}
	call := L.NewFunction(func(L *glua.LState) int {
		log.calls = append(log.calls, L.CheckString(1))
		log.firsts = append(log.firsts, L.CheckInt(2))
		return 0
	})
	line := L.NewFunction(func(L *glua.LState) int {
		log.lines = append(log.lines, L.CheckInt(1))
		return 0
	})
	ret := L.NewFunction(func(L *glua.LState) int {
		log.returns++
		return L.GetTop()
	})
	tail := L.NewFunction(func(L *glua.LState) int {
		log.tails++
		return 0
	})

	fn, err := bindHooks(L, L.NewFunctionFromProto(proto), call, line, ret, tail)
	if err != nil {
		t.Fatalf("bindHooks() error = %v", err)
	}
	L.Push(fn)
	if err := L.PCall(0, glua.MultRet, nil); err != nil {
		t.Fatalf("PCall() error = %v", err)
	}
	var results []glua.LValue
	for i := 1; i <= L.GetTop(); i++ {
		results = append(results, L.Get(i))
	}
	return log, results
}

func TestInstrument_ReportsCallsLinesAndReturns(t *testing.T) {
	log, results := runInstrumented(t, `local function add(a, b)
  return a + b
end
local t = {}
function t.twice(x)
  local y = add(x, x)
  return y
end
local r = t.twice(4)
if r > 5 then
  r = r + 1
end
return r, add(1, 2)
`)

	if want := []string{"main chunk", "t.twice", "add", "add"}; !reflect.DeepEqual(log.calls, want) {
		t.Errorf("calls = %v, want %v", log.calls, want)
	}
	if want := []int{0, 5, 1, 1}; !reflect.DeepEqual(log.firsts, want) {
		t.Errorf("first lines = %v, want %v", log.firsts, want)
	}
	if want := []int{1, 4, 5, 9, 6, 2, 7, 10, 11, 13, 2}; !reflect.DeepEqual(log.lines, want) {
		t.Errorf("lines = %v, want %v", log.lines, want)
	}
	if log.returns != 4 {
		t.Errorf("returns = %d, want 4", log.returns)
	}
	if len(results) != 2 || results[0] != glua.LNumber(9) || results[1] != glua.LNumber(3) {
		t.Errorf("results = %v, want [9 3]", results)
	}
}

func TestInstrument_Loops(t *testing.T) {
	log, results := runInstrumented(t, `local n = 0
for i = 1, 2 do
  n = n + i
end
while n < 5 do
  n = n + 1
end
repeat
  n = n - 1
until n < 4
for _, v in ipairs({1}) do
  n = n + v
end
return n
`)

	want := []int{1, 2, 3, 3, 5, 6, 6, 8, 9, 9, 11, 12, 14}
	if !reflect.DeepEqual(log.lines, want) {
		t.Errorf("lines = %v, want %v", log.lines, want)
	}
	if len(results) != 1 || results[0] != glua.LNumber(4) {
		t.Errorf("results = %v, want [4]", results)
	}
}

func TestInstrument_FallOffEndReturns(t *testing.T) {
	log, results := runInstrumented(t, `local function noop() end
noop()
local f = function() local x = 1 end
f()
`)

	if want := []string{"main chunk", "noop", "f"}; !reflect.DeepEqual(log.calls, want) {
		t.Errorf("calls = %v, want %v", log.calls, want)
	}
	if log.returns != 3 {
		t.Errorf("returns = %d, want 3", log.returns)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}
}

func TestInstrument_EmptyChunk(t *testing.T) {
	log, _ := runInstrumented(t, "")
	if !reflect.DeepEqual(log.calls, []string{"main chunk"}) || log.returns != 1 {
		t.Errorf("calls = %v returns = %d, want one call and one return", log.calls, log.returns)
	}
	if len(log.lines) != 0 {
		t.Errorf("lines = %v, want none", log.lines)
	}
}

func TestInstrument_FunctionNames(t *testing.T) {
	log, _ := runInstrumented(t, `local M = {}
function M:method() end
M.tbl = { field = function() end }
M:method()
M.tbl.field()
local run = function(f) return f() end
run(function() end)
`)

	want := []string{"main chunk", "M:method", "field", "run", "anonymous"}
	if !reflect.DeepEqual(log.calls, want) {
		t.Errorf("calls = %v, want %v", log.calls, want)
	}
}

func TestInstrument_TailCallsStayTailCalls(t *testing.T) {
	log, results := runInstrumented(t, `local function loop(n, acc)
  if n == 0 then
    return acc
  end
  return loop(n - 1, acc + 1)
end
local function wrapped(n)
  return (loop(n, 0))
end
return loop(100000, 0), wrapped(3)
`)

	if len(results) != 2 || results[0] != glua.LNumber(100000) || results[1] != glua.LNumber(3) {
		t.Fatalf("results = %v, want [100000 3]", results)
	}
	if log.tails != 100003 {
		t.Errorf("tails = %d, want 100003", log.tails)
	}
	// loop(0) returns twice; wrapped and the chunk return once each.
	if log.returns != 4 {
		t.Errorf("returns = %d, want 4", log.returns)
	}
}

func TestInstrument_HooksAreChunkLocals(t *testing.T) {
	_, results := runInstrumented(t, `local names = {}
for k in pairs(_G) do
  if type(k) == "string" and string.sub(k, 1, 2) == "__" then
    names[#names + 1] = k
  end
end
local function f() return x end
setfenv(f, {x = 7})
return #names, f()
`)

	if len(results) != 2 || results[0] != glua.LNumber(0) || results[1] != glua.LNumber(7) {
		t.Errorf("results = %v, want [0 7]", results)
	}
}

func TestIsTailCall(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"return f(x)", true},
		{"return obj:m()", true},
		{"return (f(x))", false},
		{"return f(x), 1", false},
		{"return x", false},
		{"return", false},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			stmts, err := parse.Parse(strings.NewReader(tt.src), "test")
			if err != nil {
				t.Fatal(err)
			}
			ret, ok := stmts[0].(*ast.ReturnStmt)
			if !ok {
				t.Fatalf("expected return statement, got %T", stmts[0])
			}
			if got := isTailCall(ret); got != tt.want {
				t.Errorf("isTailCall(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestChunkName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "<string>"},
		{"=gen", "<gen>"},
		{"@file", "<file>"},
		{"<already>", "<already>"},
		{"plain", "<plain>"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := chunkName(tt.in); got != tt.want {
				t.Errorf("chunkName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripShebang(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"#!/usr/bin/env lua\nprint(1)", "\nprint(1)"},
		{"print(1)", "print(1)"},
		{"#!lua", ""},
	}
	for _, tt := range tests {
		if got := stripShebang(tt.in); got != tt.want {
			t.Errorf("stripShebang(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVisibleName(t *testing.T) {
	tests := map[string]bool{
		"x":                 true,
		"(for index)":       false,
		"(*temporary)":      false,
		hookLine:            false,
		"__stepdb_anything": false,
		"__index":           true,
	}
	for name, want := range tests {
		if got := visibleName(name); got != want {
			t.Errorf("visibleName(%q) = %v, want %v", name, got, want)
		}
	}
}
