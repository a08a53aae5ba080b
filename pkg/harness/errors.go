package harness

import (
	"errors"
	"fmt"
)

// ErrScenarioUnsupported signals that a case does not run under the active
// scenario. It is a skip, not a failure.
var ErrScenarioUnsupported = errors.New("scenario not supported by this case")

// ErrPhase reports a harness operation invoked out of order.
var ErrPhase = errors.New("operation invoked in wrong phase")

// CompileError reports a compiler invocation whose exit status disagreed with
// the case's expectation.
type CompileError struct {
	ExitCode int
	Logfile  string
	Err      error
}

func (e *CompileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("compiler exited 0 but the case expects a failing compile; log at %s", e.Logfile)
	}
	return fmt.Sprintf("compiler invocation failed (exit %d): %s; log at %s", e.ExitCode, e.Err, e.Logfile)
}

func (e *CompileError) Unwrap() error { return e.Err }

// GrepError reports a failed log assertion.
type GrepError struct {
	Path    string
	Pattern string
	Negated bool
	Err     error
}

func (e *GrepError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("could not read log %s: %s", e.Path, e.Err)
	case e.Negated:
		return fmt.Sprintf("log %s matches forbidden pattern %q", e.Path, e.Pattern)
	default:
		return fmt.Sprintf("log %s does not match expected pattern %q", e.Path, e.Pattern)
	}
}

func (e *GrepError) Unwrap() error { return e.Err }
