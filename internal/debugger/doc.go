// Package debugger implements a source-level debugging engine on top of a
// host runtime's trace hook.
//
// # Architecture
//
// The host delivers call, line, return and exception events to the
// dispatcher. The dispatcher consults the breakpoint registry and the step
// state; when it decides to stop it builds the visible stack and hands it to
// the Presenter, which blocks until the operator returns a command:
//
//	Host ──event──▶ dispatcher ──▶ breakpoint.Registry / StepState
//	                    │
//	                    ▼
//	            interaction ──Stop──▶ Presenter
//	                    ▲                 │
//	                    └────Command──────┘
//
// # Stops
//
// The visible stack is trimmed at the bottom frame: the first line of the
// main program when started with RunScript, or the outermost frame when
// tracing starts from an explicit SetTrace call. Stops in frames that do not
// reach the bottom frame are ignored.
//
// Evaluating an expression during a stop may hit a breakpoint, which starts a
// nested interaction. Each interaction keeps its own stack and selection.
//
// # Quitting
//
// A quit command makes the next dispatch return ErrQuit, which the host turns
// into an abort of the program. RunScript reports it as OutcomeQuit.
package debugger
