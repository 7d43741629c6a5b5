package debugger

// StepState holds the pending stop condition of the trace dispatcher.
type StepState struct {
	stopFrame   Frame
	returnFrame Frame
	// stopLine is the minimum line to stop at in stopFrame; -1 never stops.
	stopLine int
	// anywhere stops on any frame not matched by stopFrame.
	anywhere bool
}

// ShouldStop reports whether the step condition holds for f.
func (s *StepState) ShouldStop(f Frame) bool {
	if s.stopFrame != nil && f == s.stopFrame {
		if s.stopLine == -1 {
			return false
		}
		return f.Line() >= s.stopLine
	}
	return s.anywhere
}

// IsReturnFrame reports whether f is the frame a step-return waits for.
func (s *StepState) IsReturnFrame(f Frame) bool {
	return s.returnFrame != nil && f == s.returnFrame
}

// IsStopFrame reports whether f is the frame a step-over waits in.
func (s *StepState) IsStopFrame(f Frame) bool {
	return s.stopFrame != nil && f == s.stopFrame
}

// Stepping reports whether the state stops in frames other than stopFrame.
func (s *StepState) Stepping() bool {
	return s.anywhere
}

func (s *StepState) set(stopFrame, returnFrame Frame, stopLine int) {
	s.stopFrame = stopFrame
	s.returnFrame = returnFrame
	s.stopLine = stopLine
	s.anywhere = stopFrame == nil && stopLine != -1
}

// SetStep stops at the next event anywhere.
func (s *StepState) SetStep() {
	s.set(nil, nil, 0)
}

// SetNext stops at the next line of f or anything it returns to.
func (s *StepState) SetNext(f Frame) {
	s.set(f, nil, 0)
}

// SetReturn stops when f returns, in its caller.
func (s *StepState) SetReturn(f Frame) {
	s.set(f.Caller(), f, 0)
}

// SetContinue stops only at breakpoints. bottom is never stopped in.
func (s *StepState) SetContinue(bottom Frame) {
	s.set(bottom, nil, -1)
}
