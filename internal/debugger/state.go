package debugger

import (
	"sort"

	"github.com/dshills/stepdb/internal/debugger/breakpoint"
)

// SessionState is the per-run state of the dispatcher.
type SessionState struct {
	// Bottom is the outermost frame shown to the operator. Nil shows all.
	Bottom Frame
	// WaitingForMainFile suppresses stops until the main file's first line.
	WaitingForMainFile bool
	// MainFile is the canonical path of the program being run.
	MainFile string
	// CurrentBreakpoint is the breakpoint location of the last line stop.
	CurrentBreakpoint *breakpoint.Location
	// PostMortem is set while examining an uncaught exception.
	PostMortem bool
	// SetTraces records explicit trace calls. A true mark behaves as a
	// breakpoint; a false mark is a location the operator disarmed, and later
	// trace calls there are ignored.
	SetTraces map[breakpoint.Location]bool
}

func newSessionState() SessionState {
	return SessionState{SetTraces: make(map[breakpoint.Location]bool)}
}

// setTraceLines returns the sorted lines of file with an armed mark.
func (s *SessionState) setTraceLines(file string) []int {
	var lines []int
	for loc, armed := range s.SetTraces {
		if armed && loc.File == file {
			lines = append(lines, loc.Line)
		}
	}
	sort.Ints(lines)
	return lines
}
