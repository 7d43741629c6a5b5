package console

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/dshills/stepdb/internal/debugger"
	"github.com/dshills/stepdb/internal/debugger/source"
)

type styles struct {
	current  *color.Color
	marker   *color.Color
	location *color.Color
	notice   *color.Color
	err      *color.Color
}

func newStyles(enabled bool) styles {
	s := styles{
		current:  color.New(color.FgGreen, color.Bold),
		marker:   color.New(color.FgRed, color.Bold),
		location: color.New(color.FgCyan),
		notice:   color.New(color.FgYellow),
		err:      color.New(color.FgRed),
	}
	for _, c := range []*color.Color{s.current, s.marker, s.location, s.notice, s.err} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// stopKey identifies what a stop shows. A stop presented again after a
// command that did not resume only prints what changed.
type stopKey struct {
	file     string
	line     int
	index    int
	depth    int
	finished bool
}

func keyOf(stop *debugger.Stop) stopKey {
	k := stopKey{index: stop.Index, depth: stop.Depth, finished: stop.Finished}
	if e, ok := stop.Current(); ok {
		k.file = e.Frame.File()
		k.line = e.Line
	}
	return k
}

// render prints a stop. The location and listing are skipped when the stop
// is the previous one presented again.
func (c *Console) render(stop *debugger.Stop) {
	key := keyOf(stop)
	repeated := c.reshow && key == c.lastStop
	c.lastStop = key
	c.reshow = false

	if stop.Message != "" {
		c.printf("%s\n", c.styles.notice.Sprint(stop.Message))
	}
	if stop.Evaluation != nil {
		c.printEvaluation(stop.Evaluation)
	}
	if repeated {
		return
	}

	if stop.Finished {
		if stop.Exception != nil {
			c.printf("%s\n", c.styles.err.Sprint(stop.Exception.Format()))
		}
		return
	}

	if stop.Depth > 1 {
		c.printf("%s\n", c.styles.notice.Sprintf("[nested stop, depth %d]", stop.Depth))
	}
	switch {
	case stop.PostMortem && stop.Exception != nil:
		c.printf("%s\n", c.styles.err.Sprint(stop.Exception.Format()))
		c.printf("%s\n", c.styles.notice.Sprint("Entering post-mortem mode."))
	case stop.Exception != nil:
		c.printf("%s\n", c.styles.err.Sprintf("--Exception-- %s", stop.Exception.Error()))
	case stop.HasReturn:
		c.printf("--Return-- %s\n", valueString(stop.ReturnValue))
	case stop.Breakpoint != nil:
		c.printf("Breakpoint at %s\n", stop.Breakpoint)
	}

	c.printLocation(stop)
	c.printListing(stop, c.contextLines)
}

func (c *Console) printEvaluation(ev *debugger.Evaluation) {
	if ev.Err != nil {
		c.errorf("%v", ev.Err)
		return
	}
	c.printf("%s\n", valueString(ev.Result))
}

func valueString(v debugger.Value) string {
	if v == nil {
		return "nil"
	}
	return v.String()
}

func (c *Console) printLocation(stop *debugger.Stop) {
	e, ok := stop.Current()
	if !ok {
		return
	}
	c.printf("> %s\n", c.styles.location.Sprintf("%s:%d in %s", e.Frame.File(), e.Line, e.Frame.Function()))
}

// printListing prints the lines within radius of the current line.
func (c *Console) printListing(stop *debugger.Stop, radius int) {
	e, ok := stop.Current()
	if !ok || len(stop.Lines) == 0 {
		return
	}

	for _, l := range stop.Lines {
		if l.Number == 0 {
			// Placeholder text, such as "<no source code>".
			c.printf("    %s\n", l.Text)
			continue
		}
		if l.Number < e.Line-radius || l.Number > e.Line+radius {
			continue
		}
		c.printf("%s\n", c.formatLine(l, l.Number == e.Line))
	}
}

func (c *Console) formatLine(l source.Line, current bool) string {
	mark := " "
	if l.Breakpoint {
		mark = c.styles.marker.Sprint("B")
	}
	arrow := "  "
	text := l.Text
	if current {
		arrow = c.styles.current.Sprint("->")
		text = c.styles.current.Sprint(text)
	}
	return fmt.Sprintf("%4d %s%s %s", l.Number, mark, arrow, text)
}

func (c *Console) list(stop *debugger.Stop) {
	c.printLocation(stop)
	c.printListing(stop, 2*c.contextLines)
}

func (c *Console) where(stop *debugger.Stop) {
	if len(stop.Stack) == 0 {
		c.printf("No stack.\n")
		return
	}
	c.printf("%s", debugger.FormatStack(stop.Stack, stop.Index))
}

func (c *Console) vars(stop *debugger.Stop) {
	e, ok := stop.Current()
	if !ok {
		c.printf("No frame selected.\n")
		return
	}
	locals := e.Frame.Locals()
	if len(locals) == 0 {
		c.printf("No locals.\n")
		return
	}
	for _, b := range locals {
		c.printf("%s = %s\n", b.Name, valueString(b.Value))
	}
}

func (c *Console) listBreakpoints(*debugger.Stop) {
	if c.breakpoints == nil {
		c.printf("No breakpoints.\n")
		return
	}
	bps := c.breakpoints()
	if len(bps) == 0 {
		c.printf("No breakpoints.\n")
		return
	}
	c.printf("Num  Where\n")
	for _, bp := range bps {
		var extra []string
		if !bp.Enabled {
			extra = append(extra, "disabled")
		}
		if bp.Temporary {
			extra = append(extra, "temporary")
		}
		if bp.Condition != "" {
			extra = append(extra, "if "+bp.Condition)
		}
		if bp.Hits > 0 {
			extra = append(extra, fmt.Sprintf("hit %d times", bp.Hits))
		}
		line := fmt.Sprintf("%-4d %s", bp.ID, bp.Location())
		if len(extra) > 0 {
			line += " (" + strings.Join(extra, ", ") + ")"
		}
		c.printf("%s\n", line)
	}
}

const helpText = `Commands:
  c, continue         run until the next breakpoint
  s, step             stop at the next event anywhere
  n, next             stop at the next line of this frame
  r, return           stop when this frame returns
  q, quit             abort the program
  restart             run the program again once it has finished
  u, up [n]           select an older frame
  d, down [n]         select a newer frame
  p <expr>            evaluate an expression in the selected frame
  b                   list breakpoints
  b [file:]line[, c]  set a breakpoint with optional condition c
  cl <id>             clear a breakpoint by number
  cl [file:]line      clear the breakpoints at a line
  l, list             list more source around the current line
  w, where            print the stack
  v, vars             print the locals of the selected frame
  h, help             show this help
An empty line repeats the last stepping command.
`

func (c *Console) help(*debugger.Stop) {
	c.printf("%s", helpText)
}
