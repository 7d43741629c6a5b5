package lua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/eapache/queue"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/stepdb/internal/debugger"
	"github.com/dshills/stepdb/internal/debugger/breakpoint"
	"github.com/dshills/stepdb/internal/logging"
)

// Default limits for the Lua host. gopher-lua's own default is 256 frames.
const (
	DefaultCallStackSize    = 256
	DefaultExceptionHistory = 16
)

// abortMessage is raised through the Lua stack after the debugger aborts
// the program. Protected calls in the program re-raise it.
const abortMessage = "program aborted by the debugger"

// Host runs Lua programs under the debugger.
//
// Programs are instrumented when loaded, so every function reports its
// calls, lines and returns to the host, which forwards them to the trace
// functions the debugger installed. Errors are reported through the error
// handler of protected calls, before the Lua stack unwinds.
//
// gopher-lua's LState is not goroutine-safe. All methods except Interrupt
// must be called from the goroutine running the program.
type Host struct {
	stdout        io.Writer
	canon         *breakpoint.Canonicalizer
	logger        *logging.Logger
	callStackSize int
	history       int

	L        *lua.LState
	ctx      context.Context
	chunks   []*chunk
	stack    []*frame
	baseline map[string]bool
	hooks    []lua.LValue

	global      debugger.TraceFunc
	onInterrupt func(debugger.Frame)
	onSetTrace  func(debugger.Frame, bool)
	interrupted atomic.Bool

	exceptions *queue.Queue
	uncaught   *debugger.Exception
	abort      error
	closed     bool
}

var _ debugger.Host = (*Host)(nil)

// Option configures a Host.
type Option func(*Host)

// WithStdout sets where the program's print output goes.
func WithStdout(w io.Writer) Option {
	return func(h *Host) {
		h.stdout = w
	}
}

// WithCanonicalizer shares path canonicalization with the debugger.
func WithCanonicalizer(c *breakpoint.Canonicalizer) Option {
	return func(h *Host) {
		h.canon = c
	}
}

// WithLogger sets the host logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Host) {
		h.logger = l
	}
}

// WithCallStackSize sets the Lua call stack size.
func WithCallStackSize(n int) Option {
	return func(h *Host) {
		h.callStackSize = n
	}
}

// WithExceptionHistory sets how many raised errors stay available to
// LiveExceptions.
func WithExceptionHistory(n int) Option {
	return func(h *Host) {
		h.history = n
	}
}

// New creates a Lua host.
func New(opts ...Option) *Host {
	h := &Host{
		stdout:        os.Stdout,
		logger:        logging.NullLogger,
		callStackSize: DefaultCallStackSize,
		history:       DefaultExceptionHistory,
		exceptions:    queue.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.canon == nil {
		h.canon = breakpoint.NewCanonicalizer()
	}
	if h.history <= 0 {
		h.history = 1
	}
	h.logger = h.logger.WithComponent("lua")
	return h
}

// SetTraceHandler sets the function called by the program's
// stepdb.set_trace(). Without one the call does nothing.
func (h *Host) SetTraceHandler(fn func(f debugger.Frame, asBreakpoint bool)) {
	h.onSetTrace = fn
}

// Run executes the Lua program at path in a fresh Lua state.
//
// The state stays open after Run returns so that frames of an uncaught
// error can still be evaluated; it is replaced by the next Run and released
// by Close.
func (h *Host) Run(ctx context.Context, path string) error {
	if h.closed {
		return ErrHostClosed
	}
	h.reset(ctx)

	L := h.L
	file := h.canon.Canonical(path)
	setPackagePath(L, filepath.Dir(file))
	argv := L.NewTable()
	argv.RawSetInt(0, lua.LString(path))
	L.SetGlobal("arg", argv)

	fn, err := h.loadFile(L, path)
	if err != nil {
		return err
	}

	h.logger.Debug("running %s", file)
	L.Push(fn)
	err = L.PCall(0, lua.MultRet, h.errorHandler(0, nil, true))
	if err != nil && h.uncaught == nil && !h.stopping() {
		h.uncaught = h.escaped(L, err)
	}
	h.unwind(0)
	L.SetTop(0)

	switch {
	case h.abort != nil:
		return fmt.Errorf("lua: %s: %w", abortMessage, h.abort)
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("lua: %w", ctx.Err())
	case h.uncaught != nil:
		return h.uncaught
	default:
		return fmt.Errorf("lua: %w", err)
	}
}

// reset replaces the Lua state and forgets the previous run.
func (h *Host) reset(ctx context.Context) {
	if h.L != nil {
		h.L.Close()
	}
	h.chunks = nil
	h.stack = nil
	h.uncaught = nil
	h.abort = nil
	h.exceptions = queue.New()
	h.interrupted.Store(false)

	h.ctx = ctx
	h.L = h.newState()
	if ctx.Done() != nil {
		h.L.SetContext(ctx)
	}
}

// Close releases the Lua state. The host cannot run programs afterwards.
func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	if h.L != nil {
		h.L.Close()
		h.L = nil
	}
	h.closed = true
	return nil
}

// SetTrace installs the global trace function.
func (h *Host) SetTrace(fn debugger.TraceFunc) {
	h.global = fn
}

// Tracing reports whether a global trace function is installed.
func (h *Host) Tracing() bool {
	return h.global != nil
}

// SetFrameTrace installs the local trace of a frame.
func (h *Host) SetFrameTrace(f debugger.Frame, fn debugger.TraceFunc) {
	if fr, ok := f.(*frame); ok && !fr.dead {
		fr.trace = fn
	}
}

// LiveExceptions returns the most recently raised errors, oldest first.
func (h *Host) LiveExceptions() []*debugger.Exception {
	out := make([]*debugger.Exception, 0, h.exceptions.Length())
	for i := 0; i < h.exceptions.Length(); i++ {
		out = append(out, h.exceptions.Get(i).(*debugger.Exception))
	}
	return out
}

// Interrupt requests a call of the interrupt handler at the next line.
func (h *Host) Interrupt() {
	h.interrupted.Store(true)
}

// SetInterruptHandler sets the function called after Interrupt.
func (h *Host) SetInterruptHandler(fn func(debugger.Frame)) {
	h.onInterrupt = fn
}

// Depth returns the number of live instrumented activations.
func (h *Host) Depth() int {
	return len(h.stack)
}

func (h *Host) top() *frame {
	if len(h.stack) == 0 {
		return nil
	}
	return h.stack[len(h.stack)-1]
}

func (h *Host) chunkAt(id int) *chunk {
	if id < 0 || id >= len(h.chunks) {
		return &chunk{name: "<unknown>"}
	}
	return h.chunks[id]
}

// stopping reports whether the program is being torn down, in which case
// no further events are delivered.
func (h *Host) stopping() bool {
	return h.abort != nil || (h.ctx != nil && h.ctx.Err() != nil)
}

// deliver sends ev to fn and installs the result as the frame's local
// trace. A trace error aborts the program.
func (h *Host) deliver(L *lua.LState, f *frame, fn debugger.TraceFunc, ev debugger.Event) {
	next, err := fn(ev)
	f.trace = next
	if err != nil {
		h.abort = err
		L.RaiseError("%s", abortMessage)
	}
}

// hookCall runs at the start of every instrumented function:
// __stepdb_call(name, firstLine, chunk).
func (h *Host) hookCall(L *lua.LState) int {
	if L != h.L {
		return 0
	}
	first := L.CheckInt(2)
	f := &frame{
		host:      h,
		chunk:     h.chunkAt(L.CheckInt(3)),
		function:  L.CheckString(1),
		line:      first,
		firstLine: first,
		caller:    h.top(),
	}
	if dbg, ok := L.GetStack(1); ok {
		f.dbg = dbg
		if lv, err := L.GetInfo("f", dbg, lua.LNil); err == nil {
			f.fn, _ = lv.(*lua.LFunction)
		}
	}
	h.stack = append(h.stack, f)

	if h.global != nil && !h.stopping() {
		h.deliver(L, f, h.global, debugger.Event{Kind: debugger.EventCall, Frame: f})
	}
	return 0
}

// hookLine runs before every statement: __stepdb_line(line).
func (h *Host) hookLine(L *lua.LState) int {
	f := h.top()
	if L != h.L || f == nil {
		return 0
	}
	f.line = L.CheckInt(1)

	if h.interrupted.CompareAndSwap(true, false) && h.onInterrupt != nil {
		h.onInterrupt(f)
	}
	if f.trace != nil && !h.stopping() {
		h.deliver(L, f, f.trace, debugger.Event{Kind: debugger.EventLine, Frame: f})
	}
	return 0
}

// hookReturn passes a function's return values through:
// return __stepdb_return(...).
func (h *Host) hookReturn(L *lua.LState) int {
	n := L.GetTop()
	if L == h.L {
		value := NewValue(lua.LNil)
		if n > 0 {
			value = NewValue(L.Get(1))
		}
		h.leave(L, value)
	}
	return n
}

// hookTail runs just before a tail call replaces the activation:
// __stepdb_tail(). The callee's values are not known yet.
func (h *Host) hookTail(L *lua.LState) int {
	if L == h.L {
		h.leave(L, tailCall{})
	}
	return 0
}

// leave reports the return of the top frame and pops it.
func (h *Host) leave(L *lua.LState, value debugger.Value) {
	f := h.top()
	if f == nil {
		return
	}
	if f.trace != nil && !h.stopping() {
		h.deliver(L, f, f.trace, debugger.Event{Kind: debugger.EventReturn, Frame: f, ReturnValue: value})
	}
	h.pop()
}

func (h *Host) pop() {
	f := h.top()
	if f == nil {
		return
	}
	f.dead = true
	f.trace = nil
	f.dbg = nil
	h.stack = h.stack[:len(h.stack)-1]
}

// unwind drops the frames above depth after an error ended them.
func (h *Host) unwind(depth int) {
	if depth >= len(h.stack) {
		return
	}
	for _, f := range h.stack[depth:] {
		f.dead = true
		f.trace = nil
		f.dbg = nil
	}
	h.stack = h.stack[:depth]
}

// errorHandler returns the error function of a protected call entered at
// stack depth depth. It runs before the Lua stack unwinds: it records the
// error, snapshots the frames about to be unwound and reports the error to
// the raising frame. handler is the program's own xpcall handler.
func (h *Host) errorHandler(depth int, handler *lua.LFunction, uncaught bool) *lua.LFunction {
	return h.L.NewFunction(func(L *lua.LState) int {
		obj := L.Get(1)
		if h.stopping() {
			L.Push(obj)
			return 1
		}

		exc := h.raise(L, obj, depth)
		if uncaught {
			h.uncaught = exc
		}
		if handler != nil && !h.stopping() {
			L.Push(handler)
			L.Push(obj)
			L.Call(1, 1)
			return 1
		}
		L.Push(obj)
		return 1
	})
}

func (h *Host) raise(L *lua.LState, obj lua.LValue, depth int) *debugger.Exception {
	depth = min(depth, len(h.stack))
	exc := &debugger.Exception{
		Kind:    errorKind(obj),
		Message: errorMessage(L, obj),
		Value:   NewValue(obj),
		Trace:   traceback(h.stack[max(0, depth-1):]),
	}
	for _, f := range h.stack[depth:] {
		f.capture()
	}
	h.remember(exc)

	if len(h.stack) > depth {
		f := h.top()
		if f.trace != nil {
			next, err := f.trace(debugger.Event{Kind: debugger.EventException, Frame: f, Exception: exc})
			f.trace = next
			if err != nil {
				h.abort = err
			}
		}
	}
	return exc
}

// escaped builds the exception of an error the error handler never saw,
// such as a call stack overflow, which leaves no room to call it. The
// unwound frames keep no locals.
func (h *Host) escaped(L *lua.LState, err error) *debugger.Exception {
	var obj lua.LValue = lua.LString(err.Error())
	var aerr *lua.ApiError
	if errors.As(err, &aerr) && aerr.Object != nil {
		obj = aerr.Object
	}
	exc := &debugger.Exception{
		Kind:    errorKind(obj),
		Message: errorMessage(L, obj),
		Value:   NewValue(obj),
		Trace:   traceback(h.stack),
	}
	h.remember(exc)
	h.logger.Debug("error escaped the handler: %s", exc.Message)
	return exc
}

func (h *Host) remember(exc *debugger.Exception) {
	h.exceptions.Add(exc)
	for h.exceptions.Length() > h.history {
		h.exceptions.Remove()
	}
}

// traceback links frames, outermost first, at their current lines.
func traceback(frames []*frame) *debugger.Traceback {
	var head, tail *debugger.Traceback
	for _, f := range frames {
		tb := &debugger.Traceback{Frame: f, Line: f.line}
		if head == nil {
			head = tb
		} else {
			tail.Next = tb
		}
		tail = tb
	}
	return head
}

// pcall is the program's pcall(f, ...). Errors are reported like uncaught
// ones before they are returned, and unwound frames are dropped.
func (h *Host) pcall(L *lua.LState) int {
	L.CheckAny(1)
	depth := len(h.stack)
	var errfunc *lua.LFunction
	if L == h.L {
		errfunc = h.errorHandler(depth, nil, false)
	}
	if err := L.PCall(L.GetTop()-1, lua.MultRet, errfunc); err != nil {
		return h.failed(L, err, depth)
	}
	L.Insert(lua.LTrue, 1)
	return L.GetTop()
}

// xpcall is the program's xpcall(f, handler).
func (h *Host) xpcall(L *lua.LState) int {
	fn := L.CheckFunction(1)
	handler := L.CheckFunction(2)
	top := L.GetTop()
	depth := len(h.stack)
	errfunc := handler
	if L == h.L {
		errfunc = h.errorHandler(depth, handler, false)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, errfunc); err != nil {
		return h.failed(L, err, depth)
	}
	L.Insert(lua.LTrue, top+1)
	return L.GetTop() - top
}

func (h *Host) failed(L *lua.LState, err error, depth int) int {
	if L == h.L {
		h.unwind(depth)
	}
	if h.stopping() {
		L.RaiseError("%s", abortMessage)
	}
	L.Push(lua.LFalse)
	if aerr, ok := err.(*lua.ApiError); ok {
		L.Push(aerr.Object)
	} else {
		L.Push(lua.LString(err.Error()))
	}
	return 2
}
