// Package breakpoint keeps the set of breakpoints of a debugging session and
// reads and writes the saved-breakpoints file.
package breakpoint

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Errors returned by registry operations.
var (
	// ErrBreakpointNotFound indicates an unknown breakpoint ID.
	ErrBreakpointNotFound = errors.New("breakpoint not found")

	// ErrLineDoesNotExist indicates a breakpoint on a line the file does not have.
	ErrLineDoesNotExist = errors.New("line does not exist")

	// ErrInvalidLine indicates a non-positive line number.
	ErrInvalidLine = errors.New("invalid line number")
)

// Location identifies a source line.
type Location struct {
	File string
	Line int
}

// String returns "file:line".
func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Breakpoint is a user-defined stop location.
type Breakpoint struct {
	// ID is a unique identifier for this breakpoint.
	ID int `json:"id"`

	// File is the canonical source path.
	File string `json:"file"`

	// Line is the line number (1-based).
	Line int `json:"line"`

	// Enabled indicates if the breakpoint can trigger.
	Enabled bool `json:"enabled"`

	// Temporary breakpoints are removed after their first effective hit
	// and are never saved.
	Temporary bool `json:"temporary,omitempty"`

	// Condition is an expression evaluated in the stopped frame.
	Condition string `json:"condition,omitempty"`

	// FuncName restricts the breakpoint to the first line executed in
	// the named routine.
	FuncName string `json:"funcName,omitempty"`

	// Hits counts how often the location was reached while enabled.
	Hits int `json:"hits"`

	// Ignore is the number of upcoming hits that should not stop.
	Ignore int `json:"ignore,omitempty"`

	firstLine int
}

// Location returns the file and line of the breakpoint.
func (bp *Breakpoint) Location() Location {
	return Location{File: bp.File, Line: bp.Line}
}

// LineValidator reports whether line exists in file.
type LineValidator func(file string, line int) bool

// Option configures a Registry.
type Option func(*Registry)

// WithLineValidator rejects breakpoints on lines the validator does not accept.
func WithLineValidator(v LineValidator) Option {
	return func(r *Registry) {
		r.validate = v
	}
}

// WithCanonicalizer shares a canonicalizer with other components.
func WithCanonicalizer(c *Canonicalizer) Option {
	return func(r *Registry) {
		r.canon = c
	}
}

// Registry maintains the active breakpoints keyed by canonical file and line.
type Registry struct {
	mu sync.RWMutex

	canon    *Canonicalizer
	validate LineValidator

	// All breakpoints by ID
	breakpoints map[int]*Breakpoint

	// Breakpoints grouped by location, in insertion order
	byLocation map[Location][]*Breakpoint

	// Number of breakpoints per file
	perFile map[string]int

	nextID int
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		breakpoints: make(map[int]*Breakpoint),
		byLocation:  make(map[Location][]*Breakpoint),
		perFile:     make(map[string]int),
		nextID:      1,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.canon == nil {
		r.canon = NewCanonicalizer()
	}
	return r
}

// Canonical returns the canonical form of file.
func (r *Registry) Canonical(file string) string {
	return r.canon.Canonical(file)
}

// Add creates a breakpoint at file:line.
func (r *Registry) Add(file string, line int, temporary bool, condition, funcName string) (*Breakpoint, error) {
	if line <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLine, line)
	}
	file = r.canon.Canonical(file)
	if r.validate != nil && !r.validate(file, line) {
		return nil, fmt.Errorf("%w: %s:%d", ErrLineDoesNotExist, file, line)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bp := &Breakpoint{
		ID:        r.nextID,
		File:      file,
		Line:      line,
		Enabled:   true,
		Temporary: temporary,
		Condition: condition,
		FuncName:  funcName,
	}
	r.nextID++

	loc := bp.Location()
	r.breakpoints[bp.ID] = bp
	r.byLocation[loc] = append(r.byLocation[loc], bp)
	r.perFile[file]++

	return bp, nil
}

// Clear removes a breakpoint by ID.
func (r *Registry) Clear(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, ok := r.breakpoints[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBreakpointNotFound, id)
	}
	r.remove(bp)
	return nil
}

// ClearAt removes every breakpoint at file:line and returns how many were removed.
func (r *Registry) ClearAt(file string, line int) (int, error) {
	loc := Location{File: r.canon.Canonical(file), Line: line}

	r.mu.Lock()
	defer r.mu.Unlock()

	bps := append([]*Breakpoint(nil), r.byLocation[loc]...)
	if len(bps) == 0 {
		return 0, fmt.Errorf("%w: no breakpoint at %s", ErrBreakpointNotFound, loc)
	}
	for _, bp := range bps {
		r.remove(bp)
	}
	return len(bps), nil
}

// remove drops bp from all indexes. Caller holds the write lock.
func (r *Registry) remove(bp *Breakpoint) {
	delete(r.breakpoints, bp.ID)

	loc := bp.Location()
	r.byLocation[loc] = removeFromSlice(r.byLocation[loc], bp.ID)
	if len(r.byLocation[loc]) == 0 {
		delete(r.byLocation, loc)
	}

	r.perFile[bp.File]--
	if r.perFile[bp.File] <= 0 {
		delete(r.perFile, bp.File)
	}
}

// removeFromSlice removes a breakpoint from a slice by ID.
func removeFromSlice(slice []*Breakpoint, id int) []*Breakpoint {
	for i, bp := range slice {
		if bp.ID == id {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}

// ClearFile removes all breakpoints in file.
func (r *Registry) ClearFile(file string) {
	file = r.canon.Canonical(file)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, bp := range r.breakpoints {
		if bp.File == file {
			r.remove(bp)
		}
	}
}

// ClearAll removes all breakpoints.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakpoints = make(map[int]*Breakpoint)
	r.byLocation = make(map[Location][]*Breakpoint)
	r.perFile = make(map[string]int)
}

// Get returns a breakpoint by ID.
func (r *Registry) Get(id int) (*Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bp, ok := r.breakpoints[id]
	return bp, ok
}

// SetEnabled enables or disables a breakpoint.
func (r *Registry) SetEnabled(id int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, ok := r.breakpoints[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBreakpointNotFound, id)
	}
	bp.Enabled = enabled
	return nil
}

// Enable makes a breakpoint effective again.
func (r *Registry) Enable(id int) error { return r.SetEnabled(id, true) }

// Disable keeps a breakpoint but stops it from triggering.
func (r *Registry) Disable(id int) error { return r.SetEnabled(id, false) }

// SetCondition replaces the condition of a breakpoint. An empty condition
// makes the breakpoint unconditional.
func (r *Registry) SetCondition(id int, condition string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, ok := r.breakpoints[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBreakpointNotFound, id)
	}
	bp.Condition = condition
	return nil
}

// SetIgnore sets how many upcoming hits of a breakpoint are skipped.
func (r *Registry) SetIgnore(id int, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, ok := r.breakpoints[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrBreakpointNotFound, id)
	}
	if count < 0 {
		count = 0
	}
	bp.Ignore = count
	return nil
}

// Lines returns the sorted lines of file that carry at least one enabled breakpoint.
func (r *Registry) Lines(file string) []int {
	file = r.canon.Canonical(file)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var lines []int
	for loc, bps := range r.byLocation {
		if loc.File != file {
			continue
		}
		for _, bp := range bps {
			if bp.Enabled {
				lines = append(lines, loc.Line)
				break
			}
		}
	}
	sort.Ints(lines)
	return lines
}

// At returns the breakpoints at file:line in insertion order.
func (r *Registry) At(file string, line int) []*Breakpoint {
	loc := Location{File: r.canon.Canonical(file), Line: line}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Breakpoint, len(r.byLocation[loc]))
	copy(result, r.byLocation[loc])
	return result
}

// HasFile reports whether file has any breakpoint, enabled or not.
func (r *Registry) HasFile(file string) bool {
	file = r.canon.Canonical(file)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.perFile[file] > 0
}

// Len returns the number of breakpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakpoints)
}

// All returns every breakpoint ordered by ID.
func (r *Registry) All() []*Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Breakpoint, 0, len(r.breakpoints))
	for _, bp := range r.breakpoints {
		result = append(result, bp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Persistent returns the non-temporary breakpoints ordered by ID.
func (r *Registry) Persistent() []*Breakpoint {
	all := r.All()
	result := all[:0]
	for _, bp := range all {
		if !bp.Temporary {
			result = append(result, bp)
		}
	}
	return result
}

// Hit describes the frame a breakpoint location was reached in.
type Hit struct {
	// Line is the line being executed.
	Line int

	// FuncName is the name of the executing routine.
	FuncName string

	// Eval evaluates a breakpoint condition in the executing frame.
	Eval func(condition string) (bool, error)
}

// Effective picks the breakpoint that should stop execution at loc.
//
// Breakpoints are considered in insertion order. Disabled ones are skipped, the
// hit count of each remaining candidate is incremented, ignore counts are
// consumed, and conditions are evaluated through hit.Eval without holding the
// registry lock. The second result reports whether a temporary breakpoint may be
// deleted; it is false when the condition could not be evaluated.
func (r *Registry) Effective(loc Location, hit Hit) (*Breakpoint, bool) {
	for _, bp := range r.At(loc.File, loc.Line) {
		r.mu.Lock()
		if !bp.Enabled || !bp.matchesRoutine(hit) {
			r.mu.Unlock()
			continue
		}
		bp.Hits++
		condition := bp.Condition
		if condition == "" {
			if bp.Ignore > 0 {
				bp.Ignore--
				r.mu.Unlock()
				continue
			}
			r.mu.Unlock()
			return bp, true
		}
		r.mu.Unlock()

		ok, err := true, error(nil)
		if hit.Eval != nil {
			ok, err = hit.Eval(condition)
		}
		if err != nil {
			// A broken condition stops, but must not consume a temporary breakpoint.
			return bp, false
		}
		if !ok {
			continue
		}

		r.mu.Lock()
		if bp.Ignore > 0 {
			bp.Ignore--
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()
		return bp, true
	}
	return nil, false
}

// matchesRoutine applies the routine restriction of function breakpoints.
// Caller holds the write lock.
func (bp *Breakpoint) matchesRoutine(hit Hit) bool {
	if bp.FuncName == "" {
		return bp.Line == hit.Line
	}
	if bp.FuncName != hit.FuncName {
		return false
	}
	if bp.firstLine == 0 {
		bp.firstLine = hit.Line
	}
	return bp.firstLine == hit.Line
}
