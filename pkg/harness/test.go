package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/task"
)

// Phase tracks a test's progress through its fixed step sequence.
type Phase string

const (
	PhasePending   = Phase("pending")
	PhaseCompiling = Phase("compiling")
	PhaseAsserting = Phase("asserting")
	PhaseDone      = Phase("done")
)

// Test is the run context for evaluating a single case. The runner constructs
// one per case and threads it through the evaluation explicitly; nothing here
// is process-global.
//
// A Test moves strictly forward through its phases, and its result is written
// exactly once: the first of skip, failure, cancellation or the explicit pass
// declaration wins, and later writes are ignored.
type Test struct {
	Case     *api.TestCase
	Scenario Scenario

	compiler     config.CompilerConfig
	suiteDir     string
	workDir      string
	defaultFlags []string
	compileOnly  bool
	evalID       string
	log          *zap.SugaredLogger

	phase     Phase
	started   time.Time
	took      time.Duration
	outcome   task.Outcome
	reason    string
	resultSet bool
}

// Options configures a Test run context.
type Options struct {
	// Case is the prepared descriptor to evaluate, with suite defaults
	// already applied.
	Case *api.TestCase

	// Scenario is the invocation mode to evaluate the case under.
	Scenario Scenario

	// Compiler configures the compiler under test.
	Compiler config.CompilerConfig

	// SuiteDir is the directory the case's source paths are relative to.
	SuiteDir string

	// WorkDir is the case's private scratch directory. Logs and compiler
	// outputs land here. It is created if absent.
	WorkDir string

	// DefaultCompileFlags are suite-level flags inserted before the case's
	// own compile flags.
	DefaultCompileFlags []string

	// CompileOnly skips the log assertions; the case passes if it compiles.
	CompileOnly bool

	// Logger defaults to the process logger when nil.
	Logger *zap.SugaredLogger
}

// New builds the run context for one case evaluation and creates its work
// directory.
func New(opts Options) (*Test, error) {
	if opts.Case == nil {
		return nil, errors.New("harness: nil test case")
	}
	if opts.SuiteDir == "" || opts.WorkDir == "" {
		return nil, errors.New("harness: suite and work directories are required")
	}

	log := opts.Logger
	if log == nil {
		log = logging.S()
	}

	if err := os.MkdirAll(opts.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("harness: failed to create work directory: %w", err)
	}

	return &Test{
		Case:         opts.Case,
		Scenario:     opts.Scenario,
		compiler:     opts.Compiler,
		suiteDir:     opts.SuiteDir,
		workDir:      opts.WorkDir,
		defaultFlags: opts.DefaultCompileFlags,
		compileOnly:  opts.CompileOnly,
		evalID:       uuid.New().String()[24:],
		log:          log.With("case", opts.Case.Name, "scenario", opts.Scenario.Tag),
		phase:        PhasePending,
		outcome:      task.OutcomeUnknown,
	}, nil
}

// Scenarios gates the case on the active scenario. It must be the first
// operation; when none of the given tags is the active scenario, the case is
// skipped and the remaining steps must not run.
func (t *Test) Scenarios(tags ...string) error {
	if t.phase != PhasePending {
		return fmt.Errorf("%w: scenarios in phase %s", ErrPhase, t.phase)
	}

	for _, tag := range tags {
		if tag == t.Scenario.Tag {
			t.phase = PhaseCompiling
			return nil
		}
	}

	t.phase = PhaseDone
	t.setResult(task.OutcomeSkipped, fmt.Sprintf("case does not run under scenario %q", t.Scenario.Tag))
	return ErrScenarioUnsupported
}

// Passes declares the case passed. It is the terminal operation: a case that
// never reaches it does not pass, whatever else happened.
func (t *Test) Passes() error {
	if t.phase != PhaseAsserting {
		return fmt.Errorf("%w: passes in phase %s", ErrPhase, t.phase)
	}

	t.phase = PhaseDone
	t.setResult(task.OutcomeSuccess, "")
	return nil
}

func (t *Test) fail(reason string) {
	t.phase = PhaseDone
	t.setResult(task.OutcomeFailure, reason)
}

func (t *Test) cancel(reason string) {
	t.phase = PhaseDone
	t.setResult(task.OutcomeCanceled, reason)
}

func (t *Test) setResult(o task.Outcome, reason string) {
	if t.resultSet {
		t.log.Errorw("result already set; keeping the first", "have", t.outcome, "ignored", o)
		return
	}
	t.resultSet = true
	t.outcome = o
	t.reason = reason
}

// Phase returns the test's current phase.
func (t *Test) Phase() Phase { return t.phase }

// Outcome returns the declared result, or OutcomeUnknown before any
// declaration.
func (t *Test) Outcome() task.Outcome { return t.outcome }

// Reason explains a skip, failure or cancellation. Empty on success.
func (t *Test) Reason() string { return t.reason }

// WorkDir returns the case's scratch directory.
func (t *Test) WorkDir() string { return t.workDir }

// CompileLogPath is where the compile step captures the compiler's combined
// output, unless the caller designates another destination.
func (t *Test) CompileLogPath() string { return filepath.Join(t.workDir, "compile.log") }

// BuildLogPath is where the native build step captures make's combined
// output.
func (t *Test) BuildLogPath() string { return filepath.Join(t.workDir, "build.log") }

// ObjDir is where the compiler writes its generated outputs.
func (t *Test) ObjDir() string { return filepath.Join(t.workDir, "obj_dir") }

// Took returns the wall time of the evaluation, once it has finished.
func (t *Test) Took() time.Duration { return t.took }

// Report summarizes one case evaluation.
type Report struct {
	CaseName string `json:"case_name"`
	Scenario string `json:"scenario"`

	// EvalID is the short identifier of this evaluation. It is also exported
	// to the compiler process as VLTEST_EVAL_ID, so wrapper scripts can tag
	// artifacts with it and be correlated back to the report.
	EvalID string `json:"eval_id"`

	Outcome    task.Outcome  `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Took       time.Duration `json:"took"`
	CompileLog string        `json:"compile_log"`
	WorkDir    string        `json:"work_dir"`
}

// Report returns the evaluation summary. A test that finished without an
// explicit declaration reports a failure: reaching the end is not the same
// as passing.
func (t *Test) Report() *Report {
	outcome, reason := t.outcome, t.reason
	if !t.resultSet && t.phase == PhaseDone {
		outcome, reason = task.OutcomeFailure, "case finished without declaring a result"
	}

	return &Report{
		CaseName:   t.Case.Name,
		Scenario:   t.Scenario.Tag,
		EvalID:     t.evalID,
		Outcome:    outcome,
		Reason:     reason,
		Took:       t.took,
		CompileLog: t.CompileLogPath(),
		WorkDir:    t.workDir,
	}
}

// Evaluate drives a case through its full step sequence: scenario gate,
// compile, optional native build, log assertions, pass declaration. Every
// step blocks until complete; errors convert into the case's result rather
// than propagate.
func Evaluate(ctx context.Context, t *Test) *Report {
	t.started = time.Now()
	defer func() { t.took = time.Since(t.started) }()

	if err := t.Scenarios(t.Case.Scenarios...); err != nil {
		if !errors.Is(err, ErrScenarioUnsupported) {
			t.fail(err.Error())
		}
		return t.Report()
	}

	copts := CompileOptions{
		Flags:       t.Case.CompileFlags,
		NativeBuild: t.Case.NativeBuild,
		ExpectFail:  t.Case.ExpectCompileFail,
	}
	if err := t.Compile(ctx, copts); err != nil {
		if ctx.Err() != nil {
			t.cancel(err.Error())
		} else {
			t.fail(err.Error())
		}
		return t.Report()
	}

	if !t.compileOnly {
		// Evaluate every assertion before failing, so the reason names all
		// the patterns that were off, not just the first.
		logfile := t.CompileLogPath()
		var merr *multierror.Error
		for _, pattern := range t.Case.ExpectLog {
			if err := t.FileGrep(logfile, pattern); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		for _, pattern := range t.Case.RejectLog {
			if err := t.FileGrepNot(logfile, pattern); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		if err := merr.ErrorOrNil(); err != nil {
			t.fail(err.Error())
			return t.Report()
		}
	}

	if err := t.Passes(); err != nil {
		t.fail(err.Error())
	}
	return t.Report()
}
