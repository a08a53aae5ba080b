package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/task"
)

// fakeTool writes an executable shell script and returns its path.
func fakeTool(t *testing.T, name, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

// banner approximates the compiler's spaced-letter startup banner.
const banner = "- V e r i l a t o r: stats enabled"

func newTest(t *testing.T, tc *api.TestCase, opts Options) *Test {
	t.Helper()

	if opts.Case == nil {
		opts.Case = tc
	}
	if opts.Scenario.Tag == "" {
		opts.Scenario, _ = ScenarioByTag("vlt")
	}
	if opts.SuiteDir == "" {
		opts.SuiteDir = t.TempDir()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(t.TempDir(), "work", tc.Name)
	}

	tst, err := New(opts)
	require.NoError(t, err)
	return tst
}

func TestEvaluatePasses(t *testing.T) {
	tc := &api.TestCase{
		Name:         "flag-quiet-stats",
		Top:          "t/t_flag_quiet_stats.v",
		Scenarios:    []string{"vlt"},
		CompileFlags: []string{"--quiet", "--no-quiet-stats"},
		ExpectLog:    []string{`V e r i l a t`},
	}

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `echo "`+banner+`"`)},
	})

	rep := Evaluate(context.Background(), tst)
	assert.Equal(t, task.OutcomeSuccess, rep.Outcome)
	assert.Empty(t, rep.Reason)
	assert.Equal(t, PhaseDone, tst.Phase())

	log, err := os.ReadFile(rep.CompileLog)
	require.NoError(t, err)
	assert.Contains(t, string(log), "V e r i l a t")
}

func TestEvaluateFailsWhenPatternMissing(t *testing.T) {
	tc := &api.TestCase{
		Name:      "missing-banner",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{`V e r i l a t`},
	}

	// the compiler succeeds but prints nothing, leaving an empty log.
	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `exit 0`)},
	})

	rep := Evaluate(context.Background(), tst)
	assert.Equal(t, task.OutcomeFailure, rep.Outcome)
	assert.Contains(t, rep.Reason, "V e r i l a t")
}

func TestEvaluateSkipsUnsupportedScenario(t *testing.T) {
	tc := &api.TestCase{
		Name:      "vlt-only",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{"anything"},
	}

	lint, ok := ScenarioByTag("lint")
	require.True(t, ok)

	tst := newTest(t, tc, Options{
		Scenario: lint,
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `echo should not run; exit 1`)},
	})

	rep := Evaluate(context.Background(), tst)

	// a skip is neither a pass nor a failure.
	assert.Equal(t, task.OutcomeSkipped, rep.Outcome)
	assert.Contains(t, rep.Reason, "lint")

	// the compiler must never have run.
	_, err := os.Stat(tst.CompileLogPath())
	assert.True(t, os.IsNotExist(err))
}

func TestEvaluateCompileFailure(t *testing.T) {
	tc := &api.TestCase{
		Name:      "broken",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{"unreachable"},
	}

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `echo "%Error: syntax"; exit 3`)},
	})

	rep := Evaluate(context.Background(), tst)
	assert.Equal(t, task.OutcomeFailure, rep.Outcome)
	assert.Contains(t, rep.Reason, "exit 3")
}

func TestFlagOrderForwardedVerbatim(t *testing.T) {
	tc := &api.TestCase{
		Name:         "flag-order",
		Top:          "t/t_flag_quiet_stats.v",
		Scenarios:    []string{"vlt"},
		CompileFlags: []string{"--quiet", "--no-quiet-stats"},
		ExpectLog:    []string{`V e r i l a t`},
	}

	script := `echo "argv: $*"
for a in "$@"; do echo "token: $a"; done
echo "` + banner + `"`

	suiteDir := t.TempDir()
	tst := newTest(t, tc, Options{
		SuiteDir:            suiteDir,
		Compiler:            config.CompilerConfig{Bin: fakeTool(t, "fakeilator", script)},
		DefaultCompileFlags: []string{"--stats"},
	})

	rep := Evaluate(context.Background(), tst)
	require.Equal(t, task.OutcomeSuccess, rep.Outcome)

	log, err := os.ReadFile(rep.CompileLog)
	require.NoError(t, err)
	text := string(log)

	// each flag arrives as its own token, never concatenated.
	assert.Contains(t, text, "token: --quiet\n")
	assert.Contains(t, text, "token: --no-quiet-stats\n")

	// full order: scenario flags, suite defaults, case flags, top file.
	top := filepath.Join(suiteDir, tc.Top)
	assert.Contains(t, text, "argv: --cc --stats --quiet --no-quiet-stats "+top)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	tc := &api.TestCase{
		Name:      "stable",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{`V e r i l a t`},
	}
	bin := fakeTool(t, "fakeilator", `echo "`+banner+`"`)

	var outcomes []task.Outcome
	for i := 0; i < 2; i++ {
		tst := newTest(t, tc, Options{
			Compiler: config.CompilerConfig{Bin: bin},
			WorkDir:  filepath.Join(t.TempDir(), "run", tc.Name),
		})
		outcomes = append(outcomes, Evaluate(context.Background(), tst).Outcome)
	}

	assert.Equal(t, outcomes[0], outcomes[1])
	assert.Equal(t, task.OutcomeSuccess, outcomes[0])
}

func TestResultIsSetExactlyOnce(t *testing.T) {
	tc := &api.TestCase{
		Name:      "once",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
	}

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `echo ok`)},
	})

	rep := Evaluate(context.Background(), tst)
	require.Equal(t, task.OutcomeSuccess, rep.Outcome)

	// later declarations must not move the result.
	require.Error(t, tst.Passes())
	tst.setResult(task.OutcomeFailure, "late write")
	assert.Equal(t, task.OutcomeSuccess, tst.Outcome())
	assert.Empty(t, tst.Reason())
}

func TestOperationsOutOfOrder(t *testing.T) {
	tc := &api.TestCase{
		Name:      "phases",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
	}

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `echo ok`)},
	})

	// compile, grep and passes all require their own phase.
	err := tst.Compile(context.Background(), CompileOptions{})
	assert.True(t, errors.Is(err, ErrPhase))

	err = tst.FileGrep(tst.CompileLogPath(), "x")
	assert.True(t, errors.Is(err, ErrPhase))

	err = tst.Passes()
	assert.True(t, errors.Is(err, ErrPhase))
	assert.Equal(t, task.OutcomeUnknown, tst.Outcome())
}

func TestExpectCompileFail(t *testing.T) {
	tc := &api.TestCase{
		Name:              "wants-error",
		Top:               "t/t.v",
		Scenarios:         []string{"vlt"},
		ExpectCompileFail: true,
		ExpectLog:         []string{`%Error`},
	}

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `echo "%Error: as intended"; exit 2`)},
	})

	rep := Evaluate(context.Background(), tst)
	assert.Equal(t, task.OutcomeSuccess, rep.Outcome)
}

func TestExpectCompileFailButCompilerSucceeds(t *testing.T) {
	tc := &api.TestCase{
		Name:              "wants-error",
		Top:               "t/t.v",
		Scenarios:         []string{"vlt"},
		ExpectCompileFail: true,
	}

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `echo fine; exit 0`)},
	})

	rep := Evaluate(context.Background(), tst)
	assert.Equal(t, task.OutcomeFailure, rep.Outcome)
	assert.Contains(t, rep.Reason, "expects a failing compile")
}

func TestRejectLogPattern(t *testing.T) {
	tc := &api.TestCase{
		Name:      "no-warnings",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{`V e r i l a t`},
		RejectLog: []string{`%Warning`},
	}

	script := `echo "` + banner + `"
echo "%Warning-WIDTH: t.v:1: oops"`

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", script)},
	})

	rep := Evaluate(context.Background(), tst)
	assert.Equal(t, task.OutcomeFailure, rep.Outcome)
	assert.Contains(t, rep.Reason, "%Warning")
}

func TestGrepMatchesAnywhereInLog(t *testing.T) {
	tc := &api.TestCase{
		Name:      "buried-banner",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{`V e r i l a t`},
	}

	script := `echo "first line"
echo "second line"
echo "` + banner + `"
echo "trailing line"`

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", script)},
	})

	rep := Evaluate(context.Background(), tst)
	assert.Equal(t, task.OutcomeSuccess, rep.Outcome)
}

func TestNativeBuildRunsMake(t *testing.T) {
	tc := &api.TestCase{
		Name:        "native",
		Top:         "t/t_native.v",
		Scenarios:   []string{"vlt"},
		NativeBuild: true,
		ExpectLog:   []string{`V e r i l a t`},
	}

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{
			Bin:     fakeTool(t, "fakeilator", `echo "`+banner+`"`),
			MakeBin: fakeTool(t, "fakemake", `echo "make: $*"`),
		},
	})

	rep := Evaluate(context.Background(), tst)
	require.Equal(t, task.OutcomeSuccess, rep.Outcome)

	build, err := os.ReadFile(tst.BuildLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(build), "make: -C obj_dir -f Vt_native.mk")
}

func TestCompileOnlySkipsAssertions(t *testing.T) {
	tc := &api.TestCase{
		Name:      "smoke",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{"this pattern is not in the log"},
	}

	tst := newTest(t, tc, Options{
		Compiler:    config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `echo building`)},
		CompileOnly: true,
	})

	rep := Evaluate(context.Background(), tst)
	assert.Equal(t, task.OutcomeSuccess, rep.Outcome)
}

func TestEvalIDExportedAndReported(t *testing.T) {
	tc := &api.TestCase{
		Name:      "correlated",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
		ExpectLog: []string{`V e r i l a t`},
	}

	script := `echo "eval: $VLTEST_EVAL_ID"
echo "` + banner + `"`

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", script)},
	})

	rep := Evaluate(context.Background(), tst)
	require.Equal(t, task.OutcomeSuccess, rep.Outcome)
	require.NotEmpty(t, rep.EvalID)

	// the compiler saw the same ID the report carries.
	log, err := os.ReadFile(rep.CompileLog)
	require.NoError(t, err)
	assert.Contains(t, string(log), "eval: "+rep.EvalID)
}

func TestEvaluateCanceled(t *testing.T) {
	tc := &api.TestCase{
		Name:      "slow",
		Top:       "t/t.v",
		Scenarios: []string{"vlt"},
	}

	tst := newTest(t, tc, Options{
		Compiler: config.CompilerConfig{Bin: fakeTool(t, "fakeilator", `sleep 5`)},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	rep := Evaluate(ctx, tst)
	assert.Equal(t, task.OutcomeCanceled, rep.Outcome)
	assert.True(t, strings.Contains(rep.Reason, "aborted"))
}
