package debugger

import (
	"fmt"
	"strings"
)

// Value is a host value as the debugger displays it.
type Value interface {
	// String renders the value for display.
	String() string
	// TypeName names the host type of the value.
	TypeName() string
	// Truthy reports the value's truth in the host language.
	Truthy() bool
}

// Binding is a named variable of a frame.
type Binding struct {
	Name  string
	Value Value
}

// Frame is a read-only snapshot of one active call in the host runtime.
//
// Frames are compared by identity, so a host must return the same Frame value
// for an activation for as long as it is live.
type Frame interface {
	// File returns the canonical path of the code the frame runs.
	File() string
	// Function returns the routine name.
	Function() string
	// Line returns the current line.
	Line() int
	// FirstLine returns the line the routine is defined on.
	FirstLine() int
	// Caller returns the calling frame, or nil for the outermost frame.
	Caller() Frame
	// Locals returns the local bindings visible to the program.
	Locals() []Binding
	// Globals returns the bindings of the enclosing namespace.
	Globals() []Binding
	// Code returns a comparable identity of the code object the frame runs.
	Code() any
	// ModuleSource returns source text embedded in the frame's module.
	ModuleSource() (string, bool)
	// Evaluate evaluates expr in the frame's scope.
	Evaluate(expr string) (Value, error)
}

// Traceback is one record of an exception's unwound call chain.
type Traceback struct {
	Frame Frame
	Line  int
	Next  *Traceback
}

// Exception is an exception raised in the host program.
type Exception struct {
	// Kind is the host's exception type name.
	Kind string
	// Message is the exception text.
	Message string
	// Value is the raised value.
	Value Value
	// Trace holds the frames the exception travelled through, outermost first.
	Trace *Traceback
}

// Error implements the error interface.
func (e *Exception) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}

// Deepest returns the innermost traceback record.
func (e *Exception) Deepest() *Traceback {
	tb := e.Trace
	for tb != nil && tb.Next != nil {
		tb = tb.Next
	}
	return tb
}

// From returns the traceback record of f, or nil when f is not on it.
func (e *Exception) From(f Frame) *Traceback {
	for tb := e.Trace; tb != nil; tb = tb.Next {
		if tb.Frame == f {
			return tb
		}
	}
	return nil
}

// Format renders the traceback the way a host prints uncaught errors.
func (e *Exception) Format() string {
	var b strings.Builder
	b.WriteString("Traceback (most recent call last):\n")
	for tb := e.Trace; tb != nil; tb = tb.Next {
		fmt.Fprintf(&b, "  %s:%d in %s\n", tb.Frame.File(), tb.Line, tb.Frame.Function())
	}
	b.WriteString(e.Error())
	return b.String()
}

// ProgramError reports an exception the debugged program did not handle.
type ProgramError struct {
	Exception *Exception
}

// Error implements the error interface.
func (e *ProgramError) Error() string {
	return "uncaught exception: " + e.Exception.Error()
}

// Unwrap returns the exception.
func (e *ProgramError) Unwrap() error {
	return e.Exception
}

// onCallerChain reports whether target is f or one of its callers. A nil
// target is always on the chain.
func onCallerChain(f, target Frame) bool {
	for {
		if f == target {
			return true
		}
		if f == nil {
			return false
		}
		f = f.Caller()
	}
}

// outermost returns the root of f's caller chain.
func outermost(f Frame) Frame {
	for f != nil {
		caller := f.Caller()
		if caller == nil {
			return f
		}
		f = caller
	}
	return nil
}
