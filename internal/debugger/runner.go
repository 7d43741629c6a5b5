package debugger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
)

// Outcome is how a program run ended.
type Outcome int

const (
	// OutcomeFinished means the program ran to completion.
	OutcomeFinished Outcome = iota
	// OutcomeQuit means the operator aborted the program.
	OutcomeQuit
	// OutcomeException means the program raised an uncaught exception.
	OutcomeException
	// OutcomeError means the host failed to run the program, for example
	// because it could not be loaded.
	OutcomeError
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeQuit:
		return "quit"
	case OutcomeException:
		return "exception"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// RunScript runs the program at path under the debugger.
//
// Stops are suppressed until the program's first line in path, which becomes
// the bottom frame. An operator quit ends the run cleanly with OutcomeQuit.
// An uncaught exception is examined post-mortem and returned as a
// *ProgramError with OutcomeException. Any other host failure is returned
// as is with OutcomeError.
func (d *Debugger) RunScript(ctx context.Context, path string) (Outcome, error) {
	d.state.MainFile = d.registry.Canonical(path)
	d.state.WaitingForMainFile = true
	d.state.PostMortem = false
	d.quitting = false
	d.step.SetStep()

	if d.cfg.HandleInterrupts {
		stop := d.handleInterrupts()
		defer stop()
	}

	d.logger.Info("running %s", d.state.MainFile)
	d.host.SetTrace(d.traceDispatch)
	err := d.host.Run(ctx, path)
	d.host.SetTrace(nil)
	quit := d.quitting

	var exc *Exception
	switch {
	case err == nil:
		if quit {
			return OutcomeQuit, nil
		}
		d.logger.Info("program finished")
		return OutcomeFinished, nil

	case errors.Is(err, ErrQuit):
		d.logger.Info("program aborted by operator")
		return OutcomeQuit, nil

	case errors.As(err, &exc):
		d.logger.Info("uncaught exception: %v", exc)
		d.state.PostMortem = true
		if ierr := d.Interaction(nil, exc); ierr != nil {
			return OutcomeException, fmt.Errorf("post-mortem: %w", ierr)
		}
		return OutcomeException, &ProgramError{Exception: exc}

	default:
		d.logger.Error("run %s: %v", d.state.MainFile, err)
		return OutcomeError, err
	}
}

// handleInterrupts turns SIGINT into a stop at the next traced line until the
// returned function is called.
func (d *Debugger) handleInterrupts() func() {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, os.Interrupt)

	go func() {
		for {
			select {
			case <-sigCh:
				d.host.Interrupt()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// Run debugs the program at path until the operator quits, restarting it on
// request. It returns the error of the last run.
func (d *Debugger) Run(ctx context.Context, path string) error {
	for {
		outcome, err := d.RunScript(ctx, path)
		if outcome == OutcomeQuit && err == nil {
			return nil
		}

		var perr *ProgramError
		if err != nil && !errors.As(err, &perr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stop := &Stop{Finished: true, PostMortem: perr != nil, Message: finishedMessage(perr)}
		if perr != nil {
			stop.Exception = perr.Exception
		}

		for {
			cmd := d.presenter.Present(stop)
			if cmd.Kind == CmdRestart {
				break
			}
			if cmd.Kind == CmdQuit {
				return err
			}
			stop.Message = "The program has finished. Restart it or quit."
		}

		d.logger.Info("restarting %s", path)
		d.Restart()
	}
}

func finishedMessage(perr *ProgramError) string {
	if perr != nil {
		return "The program raised an uncaught exception:\n" + perr.Exception.Format()
	}
	return "The program finished normally."
}
