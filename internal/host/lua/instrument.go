package lua

import (
	"errors"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/ast"
)

// Names of the hook functions instrumented code calls. They are locals of
// a wrapper around each chunk, so nested functions reach them as upvalues
// and the program cannot see them in any environment table.
const (
	hookPrefix = "__stepdb_"
	hookCall   = hookPrefix + "call"
	hookLine   = hookPrefix + "line"
	hookReturn = hookPrefix + "return"
	hookTail   = hookPrefix + "tail"
)

const (
	mainChunkName = "main chunk"
	anonymousName = "anonymous"
)

var errNoChunk = errors.New("instrumented chunk did not yield a function")

// instrument rewrites a parsed chunk so that it reports its execution:
//
//   - every function body, and the chunk itself, starts with
//     __stepdb_call(name, firstLine, chunk);
//   - every statement is preceded by __stepdb_line(line);
//   - every return passes its values through __stepdb_return(...), and a
//     body that can fall off its end gets a trailing __stepdb_return();
//   - a tail call "return f(x)" is preceded by __stepdb_tail() and stays a
//     tail call.
//
// The result is a wrapper chunk taking the hooks as arguments and returning
// the instrumented chunk function; see bindHooks. The chunk id identifies
// the loaded chunk to the host.
func instrument(stmts []ast.Stmt, chunk int) []ast.Stmt {
	in := &instrumenter{chunk: chunk}
	first, last := 1, 1
	if len(stmts) > 0 {
		first = stmts[0].Line()
		last = stmts[len(stmts)-1].LastLine()
	}
	return wrapChunk(in.body(stmts, mainChunkName, 0, first, last))
}

// wrapChunk builds
//
//	local __stepdb_call, __stepdb_line, __stepdb_return, __stepdb_tail = ...
//	return function(...) body end
func wrapChunk(body []ast.Stmt) []ast.Stmt {
	hooks := &ast.LocalAssignStmt{
		Names: []string{hookCall, hookLine, hookReturn, hookTail},
		Exprs: []ast.Expr{&ast.Comma3Expr{}},
	}
	fn := &ast.FunctionExpr{
		ParList: &ast.ParList{HasVargs: true, Names: []string{}},
		Stmts:   body,
	}
	return []ast.Stmt{hooks, &ast.ReturnStmt{Exprs: []ast.Expr{fn}}}
}

// bindHooks runs a compiled wrapper chunk with the hook functions, in the
// order wrapChunk declares them, and returns the chunk function.
func bindHooks(L *lua.LState, wrapper *lua.LFunction, hooks ...lua.LValue) (*lua.LFunction, error) {
	L.Push(wrapper)
	for _, hook := range hooks {
		L.Push(hook)
	}
	L.Call(len(hooks), 1)
	fn, ok := L.Get(-1).(*lua.LFunction)
	L.Pop(1)
	if !ok {
		return nil, errNoChunk
	}
	return fn, nil
}

type instrumenter struct {
	chunk int
}

func (in *instrumenter) body(stmts []ast.Stmt, name string, firstLine, entryLine, lastLine int) []ast.Stmt {
	out := make([]ast.Stmt, 0, 2*len(stmts)+2)
	out = append(out, in.callStmt(name, firstLine, entryLine))
	out = append(out, in.block(stmts)...)
	if len(stmts) == 0 {
		out = append(out, returnStmt(lastLine))
		return out
	}
	if _, ok := stmts[len(stmts)-1].(*ast.ReturnStmt); !ok {
		out = append(out, returnStmt(lastLine))
	}
	return out
}

func (in *instrumenter) block(stmts []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, 0, 2*len(stmts))
	for _, s := range stmts {
		in.stmt(s)
		out = append(out, lineStmt(s.Line()))
		if ret, ok := s.(*ast.ReturnStmt); ok {
			if isTailCall(ret) {
				out = append(out, callStmt(ret.Line(), hookTail))
			} else {
				s = wrapReturn(ret)
			}
		}
		out = append(out, s)
	}
	return out
}

func (in *instrumenter) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.AssignStmt:
		in.exprs(s.Lhs)
		for i, e := range s.Rhs {
			name := anonymousName
			if i < len(s.Lhs) {
				name = exprName(s.Lhs[i])
			}
			in.named(e, name)
		}
	case *ast.LocalAssignStmt:
		for i, e := range s.Exprs {
			name := anonymousName
			if i < len(s.Names) {
				name = s.Names[i]
			}
			in.named(e, name)
		}
	case *ast.FuncCallStmt:
		in.expr(s.Expr)
	case *ast.DoBlockStmt:
		s.Stmts = in.block(s.Stmts)
	case *ast.WhileStmt:
		in.expr(s.Condition)
		s.Stmts = in.block(s.Stmts)
	case *ast.RepeatStmt:
		in.expr(s.Condition)
		s.Stmts = in.block(s.Stmts)
	case *ast.IfStmt:
		in.expr(s.Condition)
		s.Then = in.block(s.Then)
		s.Else = in.block(s.Else)
	case *ast.NumberForStmt:
		in.expr(s.Init)
		in.expr(s.Limit)
		in.expr(s.Step)
		s.Stmts = in.block(s.Stmts)
	case *ast.GenericForStmt:
		in.exprs(s.Exprs)
		s.Stmts = in.block(s.Stmts)
	case *ast.FuncDefStmt:
		in.function(s.Func, funcDefName(s.Name))
	case *ast.ReturnStmt:
		in.exprs(s.Exprs)
	}
}

func (in *instrumenter) exprs(exprs []ast.Expr) {
	for _, e := range exprs {
		in.expr(e)
	}
}

// named instruments e, naming it when it is a function literal.
func (in *instrumenter) named(e ast.Expr, name string) {
	if fn, ok := e.(*ast.FunctionExpr); ok {
		in.function(fn, name)
		return
	}
	in.expr(e)
}

func (in *instrumenter) expr(e ast.Expr) {
	switch e := e.(type) {
	case nil:
	case *ast.FunctionExpr:
		in.function(e, anonymousName)
	case *ast.AttrGetExpr:
		in.expr(e.Object)
		in.expr(e.Key)
	case *ast.TableExpr:
		for _, f := range e.Fields {
			in.expr(f.Key)
			name := anonymousName
			if key, ok := f.Key.(*ast.StringExpr); ok {
				name = key.Value
			}
			in.named(f.Value, name)
		}
	case *ast.FuncCallExpr:
		in.expr(e.Func)
		in.expr(e.Receiver)
		in.exprs(e.Args)
	case *ast.LogicalOpExpr:
		in.expr(e.Lhs)
		in.expr(e.Rhs)
	case *ast.RelationalOpExpr:
		in.expr(e.Lhs)
		in.expr(e.Rhs)
	case *ast.StringConcatOpExpr:
		in.expr(e.Lhs)
		in.expr(e.Rhs)
	case *ast.ArithmeticOpExpr:
		in.expr(e.Lhs)
		in.expr(e.Rhs)
	case *ast.UnaryMinusOpExpr:
		in.expr(e.Expr)
	case *ast.UnaryNotOpExpr:
		in.expr(e.Expr)
	case *ast.UnaryLenOpExpr:
		in.expr(e.Expr)
	}
}

func (in *instrumenter) function(fn *ast.FunctionExpr, name string) {
	entry := fn.Line()
	if len(fn.Stmts) > 0 {
		entry = fn.Stmts[0].Line()
	}
	fn.Stmts = in.body(fn.Stmts, name, fn.Line(), entry, fn.LastLine())
}

func (in *instrumenter) callStmt(name string, firstLine, line int) ast.Stmt {
	return callStmt(line, hookCall, stringExpr(line, name), numberExpr(line, firstLine), numberExpr(line, in.chunk))
}

func lineStmt(line int) ast.Stmt {
	return callStmt(line, hookLine, numberExpr(line, line))
}

func returnStmt(line int) ast.Stmt {
	return callStmt(line, hookReturn)
}

// isTailCall reports whether ret compiles to a tail call. A parenthesized
// call is adjusted to one value and is not one.
func isTailCall(ret *ast.ReturnStmt) bool {
	if len(ret.Exprs) != 1 {
		return false
	}
	call, ok := ret.Exprs[0].(*ast.FuncCallExpr)
	return ok && !call.AdjustRet
}

// wrapReturn turns "return a, b" into "return __stepdb_return(a, b)".
func wrapReturn(ret *ast.ReturnStmt) ast.Stmt {
	call := callExpr(ret.Line(), hookReturn, ret.Exprs...)
	out := &ast.ReturnStmt{Exprs: []ast.Expr{call}}
	out.SetLine(ret.Line())
	out.SetLastLine(ret.LastLine())
	return out
}

func callStmt(line int, hook string, args ...ast.Expr) ast.Stmt {
	s := &ast.FuncCallStmt{Expr: callExpr(line, hook, args...)}
	s.SetLine(line)
	s.SetLastLine(line)
	return s
}

func callExpr(line int, hook string, args ...ast.Expr) *ast.FuncCallExpr {
	fn := &ast.IdentExpr{Value: hook}
	fn.SetLine(line)
	fn.SetLastLine(line)
	call := &ast.FuncCallExpr{Func: fn, Args: args}
	call.SetLine(line)
	call.SetLastLine(line)
	return call
}

func numberExpr(line, n int) ast.Expr {
	e := &ast.NumberExpr{Value: strconv.Itoa(n)}
	e.SetLine(line)
	e.SetLastLine(line)
	return e
}

func stringExpr(line int, s string) ast.Expr {
	e := &ast.StringExpr{Value: s}
	e.SetLine(line)
	e.SetLastLine(line)
	return e
}

// exprName renders an assignment target such as "M.util.helper".
func exprName(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.IdentExpr:
		return e.Value
	case *ast.AttrGetExpr:
		key, ok := e.Key.(*ast.StringExpr)
		if !ok {
			return exprName(e.Object) + "[]"
		}
		return exprName(e.Object) + "." + key.Value
	default:
		return anonymousName
	}
}

func funcDefName(n *ast.FuncName) string {
	if n == nil {
		return anonymousName
	}
	if n.Method != "" {
		return exprName(n.Receiver) + ":" + n.Method
	}
	return exprName(n.Func)
}

// isHookName reports whether name is one of the instrumentation hooks.
func isHookName(name string) bool {
	return strings.HasPrefix(name, hookPrefix)
}
