package debugger

import (
	"github.com/dshills/stepdb/internal/debugger/breakpoint"
)

// TraceFunc returns the dispatcher as a host trace function.
func (d *Debugger) TraceFunc() TraceFunc {
	return d.traceDispatch
}

func (d *Debugger) traceDispatch(ev Event) (TraceFunc, error) {
	if d.quitting {
		return nil, nil
	}
	if d.suspended > 0 {
		return d.traceDispatch, nil
	}

	switch ev.Kind {
	case EventLine:
		return d.dispatchLine(ev)
	case EventCall:
		return d.dispatchCall(ev)
	case EventReturn:
		return d.dispatchReturn(ev)
	case EventException:
		return d.dispatchException(ev)
	}
	return d.traceDispatch, nil
}

func (d *Debugger) dispatchLine(ev Event) (TraceFunc, error) {
	f := ev.Frame
	// A suppressed stop keeps its temporary breakpoint.
	defer func() { d.pendingTemporary = nil }()

	if d.step.ShouldStop(f) || d.breakHere(f) {
		if err := d.userLine(f); err != nil {
			return nil, err
		}
		if d.quitting {
			return nil, ErrQuit
		}
		// Tracing was switched off by a continue: do not reinstall on this frame.
		if !d.host.Tracing() {
			return nil, nil
		}
	}
	return d.traceDispatch, nil
}

func (d *Debugger) dispatchCall(ev Event) (TraceFunc, error) {
	f := ev.Frame
	if d.state.Bottom == nil {
		return d.traceDispatch, nil
	}

	stop := d.step.ShouldStop(f)
	if !stop && !d.registry.HasFile(f.File()) {
		return nil, nil
	}

	if stop && !d.state.WaitingForMainFile {
		if err := d.interact(f, nil, nil, nil, false); err != nil {
			return nil, err
		}
	}
	if d.quitting {
		return nil, ErrQuit
	}
	return d.traceDispatch, nil
}

func (d *Debugger) dispatchReturn(ev Event) (TraceFunc, error) {
	f := ev.Frame
	defer delete(d.reporting, f)
	d.forgetUnwound(f)

	if d.step.ShouldStop(f) || d.step.IsReturnFrame(f) {
		if err := d.userReturn(f, ev.ReturnValue); err != nil {
			return nil, err
		}
		if d.quitting {
			return nil, ErrQuit
		}
		// A step-over left its frame: keep stepping in the caller.
		if d.step.IsStopFrame(f) && d.step.stopLine != -1 {
			d.step.SetStep()
		}
	}
	return d.traceDispatch, nil
}

func (d *Debugger) dispatchException(ev Event) (TraceFunc, error) {
	f := ev.Frame
	d.forgetUnwound(f)

	if d.step.ShouldStop(f) {
		d.reporting[f] = true
		if !d.state.WaitingForMainFile {
			var tb *Traceback
			if ev.Exception != nil {
				tb = ev.Exception.From(f)
			}
			if err := d.interact(f, ev.Exception, tb, nil, false); err != nil {
				return nil, err
			}
		}
		if d.quitting {
			return nil, ErrQuit
		}
	}
	return d.traceDispatch, nil
}

// forgetUnwound drops the exception marks of frames that are not on f's
// caller chain. An error unwinds frames without return events, so those
// frames are gone.
func (d *Debugger) forgetUnwound(f Frame) {
	if len(d.reporting) == 0 {
		return
	}
	live := make(map[Frame]bool)
	for fr := f; fr != nil; fr = fr.Caller() {
		live[fr] = true
	}
	for fr := range d.reporting {
		if !live[fr] {
			delete(d.reporting, fr)
		}
	}
}

// passMainFileGate clears the wait for the main file once f runs a real line
// of it, making f the bottom frame. It reports whether stops are allowed.
func (d *Debugger) passMainFileGate(f Frame) bool {
	if !d.state.WaitingForMainFile {
		return true
	}
	if d.registry.Canonical(f.File()) != d.state.MainFile || f.Line() <= 0 {
		return false
	}
	d.state.WaitingForMainFile = false
	d.state.Bottom = f
	d.logger.Debug("main file reached at line %d", f.Line())
	return true
}

func (d *Debugger) userLine(f Frame) error {
	delete(d.reporting, f)
	if !d.passMainFileGate(f) {
		return nil
	}

	loc := breakpoint.Location{File: d.registry.Canonical(f.File()), Line: f.Line()}
	if len(d.registry.At(loc.File, loc.Line)) > 0 {
		d.state.CurrentBreakpoint = &loc
	} else {
		d.state.CurrentBreakpoint = nil
	}
	return d.interact(f, nil, nil, nil, false)
}

func (d *Debugger) userReturn(f Frame, value Value) error {
	if !d.passMainFileGate(f) {
		return nil
	}
	if d.reporting[f] {
		return nil
	}
	return d.interact(f, nil, nil, value, true)
}

// breakHere reports whether an enabled breakpoint stops f at its current
// line, or at the routine's definition line for function breakpoints.
// A temporary breakpoint is only marked pending here; it is removed when the
// stop is presented.
func (d *Debugger) breakHere(f Frame) bool {
	file := d.registry.Canonical(f.File())
	if !d.registry.HasFile(file) {
		return false
	}

	line := f.Line()
	if len(d.registry.At(file, line)) == 0 {
		line = f.FirstLine()
		if len(d.registry.At(file, line)) == 0 {
			return false
		}
	}

	bp, del := d.registry.Effective(breakpoint.Location{File: file, Line: line}, breakpoint.Hit{
		Line:     f.Line(),
		FuncName: f.Function(),
		Eval:     d.conditionEvaluator(f),
	})
	if bp == nil {
		return false
	}
	if del && bp.Temporary {
		d.pendingTemporary = bp
	}
	d.logger.Debug("breakpoint %d hit at %s:%d", bp.ID, file, f.Line())
	return true
}

// clearPendingTemporary removes the temporary breakpoint of the stop being
// presented.
func (d *Debugger) clearPendingTemporary() {
	bp := d.pendingTemporary
	if bp == nil {
		return
	}
	d.pendingTemporary = nil
	if err := d.registry.Clear(bp.ID); err != nil {
		d.logger.Warn("clear temporary breakpoint %d: %v", bp.ID, err)
	}
}

// conditionEvaluator evaluates breakpoint conditions in f with dispatching
// suspended, so code run by a condition never stops.
func (d *Debugger) conditionEvaluator(f Frame) func(string) (bool, error) {
	return func(cond string) (bool, error) {
		d.suspended++
		defer func() { d.suspended-- }()

		v, err := f.Evaluate(cond)
		if err != nil {
			d.logger.Debug("breakpoint condition %q: %v", cond, err)
			return false, err
		}
		return v != nil && v.Truthy(), nil
	}
}

// SetStep stops at the next event.
func (d *Debugger) SetStep() {
	d.step.SetStep()
}

// SetNext stops at the next line of f.
func (d *Debugger) SetNext(f Frame) {
	d.step.SetNext(f)
}

// SetReturn stops when f returns.
func (d *Debugger) SetReturn(f Frame) {
	d.step.SetReturn(f)
}

// SetQuit marks the session as quitting; the next dispatch aborts the program.
func (d *Debugger) SetQuit() {
	d.quitting = true
}

// SetContinue runs until a breakpoint. Without breakpoints, tracing is turned
// off globally and on every frame from the stopped one up to the bottom frame.
func (d *Debugger) SetContinue() {
	d.step.SetContinue(d.state.Bottom)
	if d.registry.Len() > 0 {
		return
	}

	d.host.SetTrace(nil)
	var f Frame
	if it, err := d.current(); err == nil {
		f = it.frame
	}
	for ; f != nil; f = f.Caller() {
		d.host.SetFrameTrace(f, nil)
		if f == d.state.Bottom {
			break
		}
	}
}

// SetTrace starts debugging at f, for example from an explicit trace call in
// the program. The dispatcher is installed on f and every caller, and the
// outermost frame becomes the bottom frame.
//
// When the location of f was disarmed by the operator the call does nothing
// more. Otherwise asBreakpoint records the location as a breakpoint-like mark
// and the debugger stops at the next event.
func (d *Debugger) SetTrace(f Frame, asBreakpoint bool) {
	if f == nil {
		return
	}
	loc := breakpoint.Location{File: d.registry.Canonical(f.File()), Line: f.Line()}

	for fr := f; fr != nil; fr = fr.Caller() {
		d.host.SetFrameTrace(fr, d.traceDispatch)
		d.state.Bottom = fr
	}

	if armed, seen := d.state.SetTraces[loc]; seen && !armed {
		d.logger.Debug("trace call at %s disarmed", loc)
		return
	}
	if asBreakpoint {
		d.state.SetTraces[loc] = true
	}
	d.step.SetStep()
	d.host.SetTrace(d.traceDispatch)
}

// onInterrupt handles SIGINT delivered through the host.
func (d *Debugger) onInterrupt(f Frame) {
	d.logger.Info("interrupted")
	d.SetTrace(f, false)
}
