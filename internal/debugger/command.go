package debugger

import (
	"github.com/dshills/stepdb/internal/debugger/breakpoint"
	"github.com/dshills/stepdb/internal/debugger/source"
)

// CommandKind identifies an operator command.
type CommandKind int

const (
	// CmdContinue runs until the next breakpoint.
	CmdContinue CommandKind = iota
	// CmdStepInto stops at the next event anywhere.
	CmdStepInto
	// CmdStepOver stops at the next line of the selected frame.
	CmdStepOver
	// CmdStepReturn stops when the selected frame returns.
	CmdStepReturn
	// CmdQuit aborts the program.
	CmdQuit
	// CmdMoveFrame moves the selected frame by Delta.
	CmdMoveFrame
	// CmdEvaluate evaluates Expr in the selected frame.
	CmdEvaluate
	// CmdBreak adds a breakpoint at File:Line with Condition.
	CmdBreak
	// CmdClearBreak removes breakpoint ID.
	CmdClearBreak
	// CmdRestart runs the program again after it finished.
	CmdRestart
)

var commandNames = map[CommandKind]string{
	CmdContinue:   "continue",
	CmdStepInto:   "step",
	CmdStepOver:   "next",
	CmdStepReturn: "return",
	CmdQuit:       "quit",
	CmdMoveFrame:  "frame",
	CmdEvaluate:   "evaluate",
	CmdBreak:      "break",
	CmdClearBreak: "clear",
	CmdRestart:    "restart",
}

// String returns the command name.
func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// resumes reports whether the command ends an interaction.
func (k CommandKind) resumes() bool {
	switch k {
	case CmdContinue, CmdStepInto, CmdStepOver, CmdStepReturn, CmdQuit:
		return true
	}
	return false
}

// Command is an operator decision returned by a Presenter.
type Command struct {
	Kind CommandKind

	// Delta is the frame offset for CmdMoveFrame.
	Delta int
	// Expr is the expression for CmdEvaluate.
	Expr string

	// File, Line and Condition describe a CmdBreak.
	File      string
	Line      int
	Condition string
	// ID is the breakpoint for CmdClearBreak.
	ID int
}

// Evaluation is the result of a CmdEvaluate.
type Evaluation struct {
	Expr   string
	Result Value
	Err    error
}

// StackEntry is one visible stack frame and the line it is at.
type StackEntry struct {
	Frame Frame
	Line  int
}

// Stop describes a stopped program to the presenter.
type Stop struct {
	// Stack is the visible stack, outermost first.
	Stack []StackEntry
	// Index is the selected entry.
	Index int
	// Source provides the text of the selected frame.
	Source source.Provider
	// Lines are the source lines of the selected frame.
	Lines []source.Line
	// Exception is set when stopped on an exception.
	Exception *Exception
	// ReturnValue is set when HasReturn is true.
	ReturnValue Value
	HasReturn   bool
	// Breakpoint is the breakpoint location stopped at, if any.
	Breakpoint *breakpoint.Location
	// PostMortem is set after an uncaught exception.
	PostMortem bool
	// Evaluation holds the result of the last evaluation.
	Evaluation *Evaluation
	// Message is a notice for the operator.
	Message string
	// Depth is the nesting depth of the interaction, starting at 1.
	Depth int
	// Finished is set when the program ended and only CmdRestart or CmdQuit
	// apply.
	Finished bool
}

// Current returns the selected stack entry.
func (s *Stop) Current() (StackEntry, bool) {
	if s.Index < 0 || s.Index >= len(s.Stack) {
		return StackEntry{}, false
	}
	return s.Stack[s.Index], true
}

// Presenter shows a stop to the operator and returns their command. It is
// called synchronously on the traced goroutine.
type Presenter interface {
	Present(stop *Stop) Command
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(stop *Stop) Command

// Present calls f.
func (f PresenterFunc) Present(stop *Stop) Command {
	return f(stop)
}
