package debugger

import "errors"

var (
	// ErrQuit aborts the debugged program after the operator quits.
	ErrQuit = errors.New("debugger: quit")

	// ErrExceptionLookup means a traceback could not be matched to exactly one
	// live exception.
	ErrExceptionLookup = errors.New("debugger: exception lookup failed")

	// ErrNotStopped is returned by operations that need an active interaction.
	ErrNotStopped = errors.New("debugger: not stopped")

	// ErrNoHost is returned when constructing a debugger without a host.
	ErrNoHost = errors.New("debugger: no host")

	// ErrNoPresenter is returned when constructing a debugger without a presenter.
	ErrNoPresenter = errors.New("debugger: no presenter")
)
