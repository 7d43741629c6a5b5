package debugger

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dshills/stepdb/internal/debugger/breakpoint"
	"github.com/dshills/stepdb/internal/debugger/source"
	"github.com/dshills/stepdb/internal/logging"
)

// Config configures a Debugger.
type Config struct {
	// BreakpointsFile is the saved-breakpoints file. Empty disables loading
	// and saving.
	BreakpointsFile string
	// SaveBreakpoints writes non-temporary breakpoints on Close.
	SaveBreakpoints bool
	// HandleInterrupts makes RunScript turn SIGINT into a stop.
	HandleInterrupts bool
	// Logger receives engine logs. Nil discards them.
	Logger *logging.Logger
	// Cache holds source lines. Nil creates a private cache.
	Cache *source.LineCache
	// Canonicalizer is shared with the host. Nil creates a private one.
	Canonicalizer *breakpoint.Canonicalizer
}

// Debugger is the trace-event dispatcher and stop controller.
//
// All methods except those of the Host's interrupt path run on the traced
// goroutine; the presenter call is the only point where the program waits.
type Debugger struct {
	host      Host
	presenter Presenter
	cfg       Config
	logger    *logging.Logger

	registry *breakpoint.Registry
	cache    *source.LineCache
	step     StepState
	state    SessionState

	// reporting marks frames that are reporting an exception.
	reporting map[Frame]bool
	// pendingTemporary is a temporary breakpoint hit by the current line
	// event. It is cleared once the stop is presented.
	pendingTemporary *breakpoint.Breakpoint
	// interactions is the stack of active stops, innermost last.
	interactions []*interaction
	provider     source.Provider

	quitting  bool
	suspended int
}

// New creates a debugger for host and loads the saved breakpoints.
// Unparsable or stale saved entries are logged and skipped.
func New(host Host, presenter Presenter, cfg Config) (*Debugger, error) {
	if host == nil {
		return nil, ErrNoHost
	}
	if presenter == nil {
		return nil, ErrNoPresenter
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NullLogger
	}
	cache := cfg.Cache
	if cache == nil {
		cache = source.NewLineCache()
	}
	canon := cfg.Canonicalizer
	if canon == nil {
		canon = breakpoint.NewCanonicalizer()
	}

	d := &Debugger{
		host:      host,
		presenter: presenter,
		cfg:       cfg,
		logger:    logger.WithComponent("debugger"),
		cache:     cache,
		state:     newSessionState(),
		reporting: make(map[Frame]bool),
		provider:  source.NewNull(),
	}
	d.registry = breakpoint.NewRegistry(
		breakpoint.WithCanonicalizer(canon),
		breakpoint.WithLineValidator(cache.HasLine),
	)
	d.step.SetStep()
	host.SetInterruptHandler(d.onInterrupt)

	if err := d.loadBreakpoints(); err != nil {
		d.logger.Warn("saved breakpoints: %v", err)
	}
	return d, nil
}

func (d *Debugger) loadBreakpoints() error {
	records, err := breakpoint.Load(d.cfg.BreakpointsFile)
	var errs *multierror.Error
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, rec := range records {
		if _, err := d.registry.Add(rec.File, rec.Line, rec.Temporary, rec.Condition, rec.FuncName); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", rec, err))
		}
	}
	if len(records) > 0 {
		d.logger.Info("loaded %d of %d saved breakpoints", d.registry.Len(), len(records))
	}
	return errs.ErrorOrNil()
}

// Close saves the non-temporary breakpoints when configured to.
func (d *Debugger) Close() error {
	if !d.cfg.SaveBreakpoints || d.cfg.BreakpointsFile == "" {
		return nil
	}
	if err := breakpoint.Save(d.cfg.BreakpointsFile, d.registry.All()); err != nil {
		return fmt.Errorf("save breakpoints: %w", err)
	}
	d.logger.Info("saved breakpoints to %s", d.cfg.BreakpointsFile)
	return nil
}

// Breakpoints returns the breakpoint registry.
func (d *Debugger) Breakpoints() *breakpoint.Registry {
	return d.registry
}

// State returns a copy of the session state.
func (d *Debugger) State() SessionState {
	return d.state
}

// Provider returns the source provider of the selected frame.
func (d *Debugger) Provider() source.Provider {
	return d.provider
}

// Cache returns the source line cache.
func (d *Debugger) Cache() *source.LineCache {
	return d.cache
}

// Quitting reports whether the operator asked to quit.
func (d *Debugger) Quitting() bool {
	return d.quitting
}

// SetBreak adds a permanent breakpoint. An empty file means the file of the
// selected frame.
func (d *Debugger) SetBreak(file string, line int, condition string) (*breakpoint.Breakpoint, error) {
	if file == "" {
		it, err := d.current()
		if err != nil {
			return nil, err
		}
		f := it.selectedFrame()
		if f == nil {
			return nil, ErrNotStopped
		}
		file = f.File()
	}
	return d.registry.Add(file, line, false, condition, "")
}

// ClearBreak removes breakpoint id.
func (d *Debugger) ClearBreak(id int) error {
	return d.registry.Clear(id)
}

// ClearBreakAt removes the breakpoints at file:line and disarms an explicit
// trace call there.
func (d *Debugger) ClearBreakAt(file string, line int) error {
	loc := breakpoint.Location{File: d.registry.Canonical(file), Line: line}
	_, seen := d.state.SetTraces[loc]
	if seen {
		d.state.SetTraces[loc] = false
	}

	_, err := d.registry.ClearAt(file, line)
	if seen && errors.Is(err, breakpoint.ErrBreakpointNotFound) {
		return nil
	}
	return err
}

// Restart forgets cached sources and resets the session state for a new run.
// Breakpoints are kept.
func (d *Debugger) Restart() {
	d.cache.Clear()
	d.provider = source.NewNull()
	d.setupState()
}

func (d *Debugger) setupState() {
	d.state = newSessionState()
	d.reporting = make(map[Frame]bool)
	d.quitting = false
}

// BreakpointLines implements source.Context.
func (d *Debugger) BreakpointLines(file string) []int {
	return d.registry.Lines(file)
}

// SetTraceLines implements source.Context.
func (d *Debugger) SetTraceLines(file string) []int {
	return d.state.setTraceLines(d.registry.Canonical(file))
}

// Message implements source.Context. Messages are shown with the next stop.
func (d *Debugger) Message(title, text string) {
	d.logger.Warn("%s: %s", title, text)
	if it, err := d.current(); err == nil {
		it.messages = append(it.messages, title+": "+text)
	}
}
