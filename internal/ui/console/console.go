// Package console is a line-mode presenter for the debugger.
//
// Each stop prints the location, any notice, and a listing around the
// current line, then reads commands until one of them resumes the program.
// Commands queued with WithScript run before any input is read.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eapache/queue"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/dshills/stepdb/internal/debugger"
	"github.com/dshills/stepdb/internal/debugger/breakpoint"
	"github.com/dshills/stepdb/internal/logging"
)

// Prompt is printed before each command.
const Prompt = "(stepdb) "

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Console presents stops on a terminal or any reader/writer pair.
type Console struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	logger      *logging.Logger

	contextLines int
	colorMode    string
	breakpoints  func() []*breakpoint.Breakpoint

	// script holds pending commands, oldest first.
	script *queue.Queue

	lastCommand string
	lastStop    stopKey
	reshow      bool
	styles      styles
}

// Option configures a Console.
type Option func(*Console)

// WithInput sets where commands are read from. Defaults to os.Stdin.
func WithInput(r io.Reader) Option {
	return func(c *Console) {
		c.in = bufio.NewReader(r)
		c.interactive = isTerminal(r)
	}
}

// WithOutput sets where stops are printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Console) {
		c.out = w
	}
}

// WithScript queues commands to run before reading input.
func WithScript(commands []string) Option {
	return func(c *Console) {
		for _, cmd := range commands {
			c.script.Add(cmd)
		}
	}
}

// WithContextLines sets how many lines around the current line are listed.
func WithContextLines(n int) Option {
	return func(c *Console) {
		c.contextLines = n
	}
}

// WithColor sets the color mode: auto, always or never.
func WithColor(mode string) Option {
	return func(c *Console) {
		c.colorMode = mode
	}
}

// WithBreakpoints supplies the breakpoints listed by a bare "b".
func WithBreakpoints(fn func() []*breakpoint.Breakpoint) Option {
	return func(c *Console) {
		c.breakpoints = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Console) {
		c.logger = l
	}
}

// New creates a console.
func New(opts ...Option) *Console {
	c := &Console{
		in:           bufio.NewReader(os.Stdin),
		out:          os.Stdout,
		interactive:  isTerminal(os.Stdin),
		contextLines: 5,
		colorMode:    ColorAuto,
		script:       queue.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NullLogger
	}
	c.styles = newStyles(c.useColor())
	return c
}

var _ debugger.Presenter = (*Console)(nil)

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *Console) useColor() bool {
	switch c.colorMode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		return !color.NoColor && isTerminal(c.out)
	}
}

// Present shows stop and returns the operator's next command.
// End of input quits.
func (c *Console) Present(stop *debugger.Stop) debugger.Command {
	c.render(stop)

	for {
		line, err := c.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Error("reading command: %v", err)
			}
			fmt.Fprintln(c.out)
			return debugger.Command{Kind: debugger.CmdQuit}
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if c.lastCommand == "" {
				continue
			}
			line = c.lastCommand
		}

		act, err := parse(line, stop)
		if err != nil {
			c.errorf("%v", err)
			continue
		}
		if act.repeatable {
			c.lastCommand = line
		} else {
			c.lastCommand = ""
		}
		if act.local != nil {
			act.local(c, stop)
			continue
		}
		c.logger.Debug("command %s", act.cmd.Kind)
		c.reshow = !resumes(act.cmd.Kind)
		return act.cmd
	}
}

func resumes(kind debugger.CommandKind) bool {
	switch kind {
	case debugger.CmdContinue, debugger.CmdStepInto, debugger.CmdStepOver, debugger.CmdStepReturn, debugger.CmdQuit:
		return true
	}
	return false
}

// readLine returns the next scripted command, or reads one from the input.
func (c *Console) readLine() (string, error) {
	if c.script.Length() > 0 {
		line := c.script.Remove().(string)
		fmt.Fprintf(c.out, "%s%s\n", Prompt, line)
		return line, nil
	}
	if c.interactive {
		fmt.Fprint(c.out, Prompt)
	}
	line, err := c.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return line, nil
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) errorf(format string, args ...any) {
	fmt.Fprintln(c.out, c.styles.err.Sprint("*** "+fmt.Sprintf(format, args...)))
}
