package debugger

import "context"

// EventKind identifies a trace event.
type EventKind int

const (
	// EventCall fires when a routine is entered.
	EventCall EventKind = iota
	// EventLine fires before a new line executes.
	EventLine
	// EventReturn fires when a routine returns.
	EventReturn
	// EventException fires when an exception is raised.
	EventException
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventCall:
		return "call"
	case EventLine:
		return "line"
	case EventReturn:
		return "return"
	case EventException:
		return "exception"
	default:
		return "unknown"
	}
}

// Event is one trace notification from the host.
type Event struct {
	Kind  EventKind
	Frame Frame
	// ReturnValue is set on return events.
	ReturnValue Value
	// Exception is set on exception events.
	Exception *Exception
}

// TraceFunc receives trace events. The returned function becomes the local
// trace of the event's frame; nil stops tracing that frame. A non-nil error
// aborts the program, with ErrQuit meaning the operator asked to stop.
type TraceFunc func(Event) (TraceFunc, error)

// Host is the runtime executing the debugged program.
//
// A host delivers call events to the global trace function. Line, return and
// exception events go to the local trace of their frame, which is the function
// returned by the call event or installed with SetFrameTrace.
type Host interface {
	// Run executes the program at path in a fresh namespace holding only the
	// program name "__main__" and its file. It returns an *Exception for an
	// uncaught program error and an error wrapping ErrQuit after an abort.
	Run(ctx context.Context, path string) error
	// SetTrace installs the global trace function; nil disables tracing.
	SetTrace(fn TraceFunc)
	// Tracing reports whether a global trace function is installed.
	Tracing() bool
	// SetFrameTrace installs the local trace of a live frame; nil removes it.
	SetFrameTrace(f Frame, fn TraceFunc)
	// LiveExceptions returns the exceptions the host still holds.
	LiveExceptions() []*Exception
	// Interrupt asks the host to call the interrupt handler at the next line.
	// It is safe to call from any goroutine.
	Interrupt()
	// SetInterruptHandler sets the function called with the current frame
	// after Interrupt.
	SetInterruptHandler(fn func(Frame))
}
