package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// CompileOptions configures one invocation of the compiler under test.
type CompileOptions struct {
	// Flags are the case's own compiler flags, forwarded verbatim and in
	// order, each as its own argument.
	Flags []string

	// Logfile designates where the compiler's combined output is captured.
	// Empty selects the test's compile log.
	Logfile string

	// NativeBuild runs the compiler-emitted makefile after a successful
	// compile.
	NativeBuild bool

	// ExpectFail inverts the exit status check: the compiler must exit
	// non-zero.
	ExpectFail bool
}

// Compile invokes the external compiler on the case's top file, capturing
// stdout and stderr into the log file. The full argument order is: scenario
// flags, compiler defaults from the environment, suite defaults, then the
// case's flags, then the top file.
func (t *Test) Compile(ctx context.Context, opts CompileOptions) error {
	if t.phase != PhaseCompiling {
		return fmt.Errorf("%w: compile in phase %s", ErrPhase, t.phase)
	}

	logfile := opts.Logfile
	if logfile == "" {
		logfile = t.CompileLogPath()
	}

	args := make([]string, 0, len(t.Scenario.Flags)+len(t.compiler.DefaultFlags)+len(t.defaultFlags)+len(opts.Flags)+1)
	args = append(args, t.Scenario.Flags...)
	args = append(args, t.compiler.DefaultFlags...)
	args = append(args, t.defaultFlags...)
	args = append(args, opts.Flags...)
	args = append(args, filepath.Join(t.suiteDir, t.Case.Top))

	t.log.Infow("compiling", "bin", t.compiler.Bin, "args", args, "logfile", logfile)

	exit, err := t.runCommand(ctx, logfile, t.compiler.Bin, args...)
	if ctx.Err() != nil {
		return fmt.Errorf("compile aborted: %w", ctx.Err())
	}

	switch {
	case opts.ExpectFail && err == nil:
		return &CompileError{ExitCode: 0, Logfile: logfile}
	case opts.ExpectFail:
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			// the compiler never ran; that is a failure even for an
			// expect-fail case.
			return &CompileError{ExitCode: exit, Logfile: logfile, Err: err}
		}
		t.log.Infow("compiler failed as expected", "exit", exit)
	case err != nil:
		return &CompileError{ExitCode: exit, Logfile: logfile, Err: err}
	}

	if opts.NativeBuild && !opts.ExpectFail {
		if err := t.nativeBuild(ctx); err != nil {
			return err
		}
	}

	t.phase = PhaseAsserting
	return nil
}

// nativeBuild drives the compiler-emitted makefile, the optional second build
// stage of a case.
func (t *Test) nativeBuild(ctx context.Context) error {
	var (
		mkfile  = "V" + t.Case.TopBase() + ".mk"
		logfile = t.BuildLogPath()
		args    = []string{"-C", "obj_dir", "-f", mkfile}
	)

	t.log.Infow("running native build", "bin", t.compiler.MakeBin, "makefile", mkfile, "logfile", logfile)

	exit, err := t.runCommand(ctx, logfile, t.compiler.MakeBin, args...)
	if ctx.Err() != nil {
		return fmt.Errorf("native build aborted: %w", ctx.Err())
	}
	if err != nil {
		return &CompileError{ExitCode: exit, Logfile: logfile, Err: err}
	}
	return nil
}

// runCommand executes bin in the case's work directory, teeing nothing: the
// combined output goes to the log file only. Returns the exit code when the
// process ran to completion.
func (t *Test) runCommand(ctx context.Context, logfile string, bin string, args ...string) (int, error) {
	f, err := os.Create(logfile)
	if err != nil {
		return -1, fmt.Errorf("failed to open log %s for writing: %w", logfile, err)
	}
	defer f.Close()

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = t.workDir
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.Env = append(os.Environ(), "VLTEST_EVAL_ID="+t.evalID)

	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return ee.ExitCode(), err
		}
		return -1, err
	}
	return 0, nil
}
