package lua

import (
	"errors"
	"fmt"
)

// Errors for Lua host operations.
var (
	// ErrHostClosed is returned when operating on a closed host.
	ErrHostClosed = errors.New("lua host is closed")

	// ErrNotRunning is returned when evaluating without a Lua state.
	ErrNotRunning = errors.New("lua host is not running a program")
)

// SyntaxError reports Lua code that could not be compiled.
type SyntaxError struct {
	Chunk string
	Err   error
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %s: %v", e.Chunk, e.Err)
}

// Unwrap returns the parser error.
func (e *SyntaxError) Unwrap() error {
	return e.Err
}
