package debugger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeValue struct {
	text   string
	truthy bool
}

func (v fakeValue) String() string { return v.text }
func (v fakeValue) TypeName() string { return "fake" }
func (v fakeValue) Truthy() bool { return v.truthy }

type fakeFrame struct {
	file      string
	fn        string
	line      int
	firstLine int
	caller    *fakeFrame
	code      *int
	source    string
	hasSource bool
	eval      func(expr string) (Value, error)
}

func newFrame(file, fn string, firstLine int, caller *fakeFrame) *fakeFrame {
	return &fakeFrame{file: file, fn: fn, line: firstLine, firstLine: firstLine, caller: caller, code: new(int)}
}

func (f *fakeFrame) File() string { return f.file }
func (f *fakeFrame) Function() string { return f.fn }
func (f *fakeFrame) Line() int { return f.line }
func (f *fakeFrame) FirstLine() int { return f.firstLine }
func (f *fakeFrame) Locals() []Binding { return nil }
func (f *fakeFrame) Globals() []Binding {
	return []Binding{{Name: "__name__", Value: fakeValue{text: "__main__", truthy: true}}}
}
func (f *fakeFrame) Code() any { return f.code }
func (f *fakeFrame) ModuleSource() (string, bool) {
	return f.source, f.hasSource
}

func (f *fakeFrame) Caller() Frame {
	if f.caller == nil {
		return nil
	}
	return f.caller
}

func (f *fakeFrame) Evaluate(expr string) (Value, error) {
	if f.eval != nil {
		return f.eval(expr)
	}
	return nil, fmt.Errorf("cannot evaluate %q", expr)
}

// fakeHost replays a scripted program through the trace protocol.
type fakeHost struct {
	global     TraceFunc
	traces     map[Frame]TraceFunc
	exceptions []*Exception
	onInt      func(Frame)
	program    func(h *fakeHost) error
	runs       int
}

func newFakeHost(program func(h *fakeHost) error) *fakeHost {
	return &fakeHost{traces: make(map[Frame]TraceFunc), program: program}
}

func (h *fakeHost) Run(ctx context.Context, path string) error {
	h.runs++
	h.traces = make(map[Frame]TraceFunc)
	if h.program == nil {
		return nil
	}
	return h.program(h)
}

func (h *fakeHost) SetTrace(fn TraceFunc) { h.global = fn }
func (h *fakeHost) Tracing() bool { return h.global != nil }
func (h *fakeHost) LiveExceptions() []*Exception { return h.exceptions }
func (h *fakeHost) Interrupt() {}
func (h *fakeHost) SetInterruptHandler(fn func(Frame)) { h.onInt = fn }
func (h *fakeHost) SetFrameTrace(f Frame, fn TraceFunc) {
	if fn == nil {
		delete(h.traces, f)
		return
	}
	h.traces[f] = fn
}

func (h *fakeHost) call(f *fakeFrame) error {
	if h.global == nil {
		return nil
	}
	fn, err := h.global(Event{Kind: EventCall, Frame: f})
	h.SetFrameTrace(f, fn)
	return err
}

func (h *fakeHost) local(f *fakeFrame, ev Event) error {
	fn, ok := h.traces[f]
	if !ok {
		return nil
	}
	next, err := fn(ev)
	h.SetFrameTrace(f, next)
	return err
}

func (h *fakeHost) line(f *fakeFrame, line int) error {
	f.line = line
	return h.local(f, Event{Kind: EventLine, Frame: f})
}

func (h *fakeHost) ret(f *fakeFrame, v Value) error {
	return h.local(f, Event{Kind: EventReturn, Frame: f, ReturnValue: v})
}

func (h *fakeHost) raise(f *fakeFrame, exc *Exception) error {
	return h.local(f, Event{Kind: EventException, Frame: f, Exception: exc})
}

// steps runs host operations until one fails.
func steps(ops ...func() error) error {
	for _, op := range ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

// scriptedPresenter answers stops with queued commands and records them.
type scriptedPresenter struct {
	t        *testing.T
	commands []Command
	stops    []*Stop
	onStop   func(stop *Stop)
}

func (p *scriptedPresenter) Present(stop *Stop) Command {
	p.stops = append(p.stops, stop)
	if p.onStop != nil {
		p.onStop(stop)
	}
	if len(p.commands) == 0 {
		p.t.Errorf("unexpected stop %d: %+v", len(p.stops), stop)
		return Command{Kind: CmdQuit}
	}
	cmd := p.commands[0]
	p.commands = p.commands[1:]
	return cmd
}

func (p *scriptedPresenter) locations() []string {
	var locs []string
	for _, s := range p.stops {
		e, ok := s.Current()
		if !ok {
			locs = append(locs, "finished")
			continue
		}
		locs = append(locs, fmt.Sprintf("%s:%d", filepath.Base(e.Frame.File()), e.Line))
	}
	return locs
}

// writeProgram creates a file with n lines and returns its canonical path.
func writeProgram(t *testing.T, name string, n int) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line%d()\n", i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestDebugger(t *testing.T, host Host, cmds ...Command) (*Debugger, *scriptedPresenter) {
	t.Helper()
	p := &scriptedPresenter{t: t, commands: cmds}
	d, err := New(host, p, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d, p
}

func cmd(kind CommandKind) Command { return Command{Kind: kind} }
