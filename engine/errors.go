package engine

import (
	"errors"
	"fmt"
)

var (
	ErrOOMKilled      = errors.New("oom killed")
	ErrTimedOut       = errors.New("timed out")
	ErrWorkflowFailed = errors.New("workflow failed")
)

// StepFailed reports a step whose command exited non-zero. It wraps
// ErrWorkflowFailed so callers can match either the sentinel or pull
// the exit code out.
type StepFailed struct {
	StepIdx  int
	ExitCode int
}

func (e *StepFailed) Error() string {
	return fmt.Sprintf("step %d exited with code %d", e.StepIdx, e.ExitCode)
}

func (e *StepFailed) Unwrap() error {
	return ErrWorkflowFailed
}
