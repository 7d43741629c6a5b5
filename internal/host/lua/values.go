package lua

import (
	"fmt"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stepdb/internal/debugger"
)

// Display limits for table values.
const (
	maxTableDepth   = 3
	maxTableEntries = 32
)

// Value is a Lua value as the debugger displays it.
type Value struct {
	lv lua.LValue
}

// NewValue wraps lv. A nil lv is Lua nil.
func NewValue(lv lua.LValue) Value {
	if lv == nil {
		lv = lua.LNil
	}
	return Value{lv: lv}
}

// Lua returns the wrapped value.
func (v Value) Lua() lua.LValue { return v.lv }

// TypeName returns the Lua type name.
func (v Value) TypeName() string { return v.lv.Type().String() }

// Truthy applies Lua truth: only nil and false are false.
func (v Value) Truthy() bool { return lua.LVAsBool(v.lv) }

// String renders the value. Tables are expanded a few levels deep with
// cycles shown as {...}.
func (v Value) String() string {
	var b strings.Builder
	formatValue(&b, v.lv, 0, make(map[*lua.LTable]bool))
	return b.String()
}

var _ debugger.Value = Value{}

// tailCall is the return value reported for an activation that ends in a
// tail call.
type tailCall struct{}

func (tailCall) String() string   { return "<tail call>" }
func (tailCall) TypeName() string { return "tail call" }
func (tailCall) Truthy() bool     { return false }

func formatValue(b *strings.Builder, lv lua.LValue, depth int, visited map[*lua.LTable]bool) {
	switch v := lv.(type) {
	case lua.LString:
		b.WriteString(quoteLua(string(v)))
	case *lua.LTable:
		formatTable(b, v, depth, visited)
	default:
		b.WriteString(lv.String())
	}
}

func formatTable(b *strings.Builder, t *lua.LTable, depth int, visited map[*lua.LTable]bool) {
	if visited[t] || depth >= maxTableDepth {
		b.WriteString("{...}")
		return
	}
	visited[t] = true
	defer delete(visited, t)

	// Array part first, in order, then the remaining keys sorted by their
	// rendering.
	n := 0
	for {
		if t.RawGetInt(n+1) == lua.LNil {
			break
		}
		n++
	}

	type entry struct {
		key   string
		value lua.LValue
	}
	var rest []entry
	t.ForEach(func(k, v lua.LValue) {
		if num, ok := k.(lua.LNumber); ok {
			i := int(num)
			if float64(i) == float64(num) && i >= 1 && i <= n {
				return
			}
		}
		rest = append(rest, entry{key: formatKey(k), value: v})
	})
	sort.Slice(rest, func(i, j int) bool { return rest[i].key < rest[j].key })

	b.WriteByte('{')
	written := 0
	sep := func() bool {
		if written >= maxTableEntries {
			b.WriteString(", ...")
			return false
		}
		if written > 0 {
			b.WriteString(", ")
		}
		written++
		return true
	}
	for i := 1; i <= n; i++ {
		if !sep() {
			b.WriteByte('}')
			return
		}
		formatValue(b, t.RawGetInt(i), depth+1, visited)
	}
	for _, e := range rest {
		if !sep() {
			break
		}
		b.WriteString(e.key)
		b.WriteString(" = ")
		formatValue(b, e.value, depth+1, visited)
	}
	b.WriteByte('}')
}

func formatKey(k lua.LValue) string {
	if s, ok := k.(lua.LString); ok && isIdentifier(string(s)) {
		return string(s)
	}
	if s, ok := k.(lua.LString); ok {
		return "[" + quoteLua(string(s)) + "]"
	}
	return "[" + k.String() + "]"
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func quoteLua(s string) string {
	return fmt.Sprintf("%q", s)
}

// errorKind names the kind of a raised Lua error value.
func errorKind(obj lua.LValue) string {
	switch obj.(type) {
	case lua.LString:
		return "error"
	default:
		return obj.Type().String() + " error"
	}
}

// errorMessage renders a raised Lua error value, honouring __tostring.
func errorMessage(L *lua.LState, obj lua.LValue) string {
	if s, ok := obj.(lua.LString); ok {
		return string(s)
	}
	if L != nil {
		if s, ok := L.ToStringMeta(obj).(lua.LString); ok {
			return string(s)
		}
	}
	return NewValue(obj).String()
}
