package debugger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/stepdb/internal/debugger/breakpoint"
)

const postMortemNotice = "Post-mortem mode: can't modify state."

// Interaction presents a stop in f, optionally for exc, and returns once the
// operator resumes. Stops outside the bottom frame are ignored unless the
// session is post-mortem.
func (d *Debugger) Interaction(f Frame, exc *Exception) error {
	var tb *Traceback
	if exc != nil {
		if f == nil {
			tb = exc.Trace
		} else {
			tb = exc.From(f)
		}
	}
	return d.interact(f, exc, tb, nil, false)
}

// InteractionWithTraceback presents a stop for a bare traceback. The owning
// exception is looked up among the host's live exceptions; anything but a
// single match fails with ErrExceptionLookup.
func (d *Debugger) InteractionWithTraceback(f Frame, tb *Traceback) error {
	var matches []*Exception
	for _, exc := range d.host.LiveExceptions() {
		if exc.Trace == tb {
			matches = append(matches, exc)
		}
	}
	if len(matches) != 1 {
		return fmt.Errorf("%w: %d exceptions own the traceback", ErrExceptionLookup, len(matches))
	}
	return d.interact(f, matches[0], tb, nil, false)
}

func (d *Debugger) interact(f Frame, exc *Exception, tb *Traceback, ret Value, hasReturn bool) error {
	if !onCallerChain(f, d.state.Bottom) && !d.state.PostMortem {
		return nil
	}
	d.clearPendingTemporary()

	stack, index := BuildVisibleStack(f, tb, d.state.Bottom)
	if d.state.PostMortem {
		index = len(stack) - 1
	}

	it := &interaction{
		frame:       f,
		exception:   exc,
		stack:       stack,
		returnValue: ret,
		hasReturn:   hasReturn,
	}
	d.interactions = append(d.interactions, it)
	defer func() {
		d.interactions = d.interactions[:len(d.interactions)-1]
	}()

	d.setFrameIndex(it, index)
	d.logStop(it)

	for {
		cmd := d.presenter.Present(d.buildStop(it))
		it.evaluation = nil
		it.messages = nil

		if cmd.Kind.resumes() {
			if d.state.PostMortem && cmd.Kind != CmdQuit {
				it.messages = append(it.messages, postMortemNotice)
				continue
			}
			d.resume(it, cmd)
			return nil
		}

		d.handle(it, cmd)
		if d.quitting {
			// Quit from a nested stop unwinds every interaction.
			return nil
		}
	}
}

func (d *Debugger) buildStop(it *interaction) *Stop {
	stop := &Stop{
		Stack:       it.stack,
		Index:       it.index,
		Source:      it.provider,
		Exception:   it.exception,
		ReturnValue: it.returnValue,
		HasReturn:   it.hasReturn,
		Breakpoint:  d.state.CurrentBreakpoint,
		PostMortem:  d.state.PostMortem,
		Evaluation:  it.evaluation,
		Depth:       len(d.interactions),
	}
	if it.provider != nil {
		stop.Lines = it.provider.Lines(d)
	}
	stop.Message = strings.Join(it.messages, "\n")
	return stop
}

func (d *Debugger) resume(it *interaction, cmd Command) {
	f := it.selectedFrame()
	switch cmd.Kind {
	case CmdContinue:
		d.SetContinue()
	case CmdStepInto:
		d.SetStep()
	case CmdStepOver:
		if f == nil {
			d.SetStep()
			return
		}
		d.SetNext(f)
	case CmdStepReturn:
		if f == nil {
			d.SetStep()
			return
		}
		d.SetReturn(f)
	case CmdQuit:
		d.logger.Info("quit requested")
		d.SetQuit()
	}
}

func (d *Debugger) handle(it *interaction, cmd Command) {
	switch cmd.Kind {
	case CmdMoveFrame:
		_ = d.MoveFrame(cmd.Delta)

	case CmdEvaluate:
		it.evaluation = d.evaluate(it, cmd.Expr)

	case CmdBreak:
		bp, err := d.SetBreak(cmd.File, cmd.Line, cmd.Condition)
		if err != nil {
			it.messages = append(it.messages, fmt.Sprintf("Cannot set breakpoint: %v", err))
			return
		}
		it.messages = append(it.messages, fmt.Sprintf("Breakpoint %d at %s", bp.ID, bp.Location()))

	case CmdClearBreak:
		var err error
		if cmd.ID > 0 {
			err = d.ClearBreak(cmd.ID)
		} else {
			err = d.ClearBreakAt(cmd.File, cmd.Line)
		}
		switch {
		case errors.Is(err, breakpoint.ErrBreakpointNotFound):
			it.messages = append(it.messages, "No such breakpoint.")
		case err != nil:
			it.messages = append(it.messages, fmt.Sprintf("Cannot clear breakpoint: %v", err))
		default:
			it.messages = append(it.messages, "Breakpoint cleared.")
		}

	case CmdRestart:
		it.messages = append(it.messages, "The program is still running; quit it first.")

	default:
		it.messages = append(it.messages, fmt.Sprintf("Unknown command %d.", cmd.Kind))
	}
}

// evaluate runs expr in the selected frame. Only breakpoints stop code run by
// the expression; a stop there is a nested interaction.
func (d *Debugger) evaluate(it *interaction, expr string) *Evaluation {
	f := it.selectedFrame()
	if f == nil {
		return &Evaluation{Expr: expr, Err: ErrNotStopped}
	}

	saved := d.step
	d.step.SetContinue(nil)
	defer func() { d.step = saved }()

	v, err := f.Evaluate(expr)
	return &Evaluation{Expr: expr, Result: v, Err: err}
}

func (d *Debugger) logStop(it *interaction) {
	e, ok := it.selected()
	if !ok {
		d.logger.Debug("stop with empty stack")
		return
	}
	switch {
	case d.state.PostMortem:
		d.logger.Info("post-mortem at %s:%d", e.Frame.File(), e.Line)
	case it.exception != nil:
		d.logger.Debug("exception %s at %s:%d", it.exception.Kind, e.Frame.File(), e.Line)
	default:
		d.logger.Debug("stopped at %s:%d depth %d", e.Frame.File(), e.Line, len(d.interactions))
	}
}
