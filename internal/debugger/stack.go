package debugger

import (
	"fmt"
	"strings"

	"github.com/dshills/stepdb/internal/debugger/source"
)

// collectStack lists f and its callers outermost first, followed by the
// traceback records below f. The returned index selects f, or the deepest
// traceback record when f is nil.
func collectStack(f Frame, tb *Traceback) ([]StackEntry, int) {
	if tb != nil && f != nil && tb.Frame == f {
		tb = tb.Next
	}

	var stack []StackEntry
	for fr := f; fr != nil; fr = fr.Caller() {
		stack = append(stack, StackEntry{Frame: fr, Line: fr.Line()})
	}
	for i, j := 0, len(stack)-1; i < j; i, j = i+1, j-1 {
		stack[i], stack[j] = stack[j], stack[i]
	}
	index := max(0, len(stack)-1)

	for ; tb != nil; tb = tb.Next {
		stack = append(stack, StackEntry{Frame: tb.Frame, Line: tb.Line})
	}
	if f == nil {
		index = max(0, len(stack)-1)
	}
	return stack, index
}

// BuildVisibleStack returns the stack the operator sees for a stop in f.
// Entries outside bottom are dropped and the selected index shifts with them.
func BuildVisibleStack(f Frame, tb *Traceback, bottom Frame) ([]StackEntry, int) {
	stack, index := collectStack(f, tb)
	if bottom == nil {
		return stack, index
	}
	for i, e := range stack {
		if e.Frame == bottom && index >= i {
			return stack[i:], index - i
		}
	}
	return stack, index
}

// interaction is the state of one stop. Nested stops push their own.
type interaction struct {
	frame     Frame
	exception *Exception
	stack     []StackEntry
	index     int
	provider  source.Provider

	returnValue Value
	hasReturn   bool
	evaluation  *Evaluation
	messages    []string
}

func (it *interaction) selected() (StackEntry, bool) {
	if it.index < 0 || it.index >= len(it.stack) {
		return StackEntry{}, false
	}
	return it.stack[it.index], true
}

func (it *interaction) selectedFrame() Frame {
	e, ok := it.selected()
	if !ok {
		return nil
	}
	return e.Frame
}

func (d *Debugger) current() (*interaction, error) {
	if len(d.interactions) == 0 {
		return nil, ErrNotStopped
	}
	return d.interactions[len(d.interactions)-1], nil
}

// setFrameIndex selects a stack entry and picks the source provider for it:
// the file when it can be read, the module's embedded source when it has
// one, and the placeholder otherwise.
func (d *Debugger) setFrameIndex(it *interaction, index int) {
	it.index = index
	e, ok := it.selected()
	if !ok {
		return
	}

	file := e.Frame.File()
	switch text, embedded := e.Frame.ModuleSource(); {
	case d.cache.Available(file):
		it.provider = source.NewFile(file, d.cache)
	case embedded:
		it.provider = source.NewDirect(e.Frame.Function(), e.Frame.Code(), text)
	default:
		it.provider = source.NewNull()
	}
	d.provider = it.provider
}

// SetFrameIndex selects the stack entry at index in the current stop.
func (d *Debugger) SetFrameIndex(index int) error {
	it, err := d.current()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(it.stack) {
		return fmt.Errorf("frame index %d out of range [0, %d)", index, len(it.stack))
	}
	d.setFrameIndex(it, index)
	return nil
}

// MoveFrame moves the selection by delta, clamped to the stack.
func (d *Debugger) MoveFrame(delta int) error {
	it, err := d.current()
	if err != nil {
		return err
	}
	if len(it.stack) == 0 {
		return nil
	}
	index := min(max(it.index+delta, 0), len(it.stack)-1)
	if index != it.index {
		d.setFrameIndex(it, index)
	}
	return nil
}

// Up selects the caller of the selected frame.
func (d *Debugger) Up() error { return d.MoveFrame(-1) }

// Down selects the callee of the selected frame.
func (d *Debugger) Down() error { return d.MoveFrame(1) }

// StackSituationID identifies the code of the selected frame so a presenter
// can tell when the displayed source must change.
func (d *Debugger) StackSituationID() (any, error) {
	it, err := d.current()
	if err != nil {
		return nil, err
	}
	f := it.selectedFrame()
	if f == nil {
		return nil, nil
	}
	return f.Code(), nil
}

// FormatStack renders a stack with the selected entry marked.
func FormatStack(stack []StackEntry, index int) string {
	var b strings.Builder
	for i, e := range stack {
		marker := "  "
		if i == index {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%s:%d in %s\n", marker, e.Frame.File(), e.Line, e.Frame.Function())
	}
	return b.String()
}
