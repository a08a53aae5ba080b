package runner

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imdario/mergo"
	"golang.org/x/sync/errgroup"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/harness"
	"github.com/vltest/vltest/pkg/healthcheck"
	"github.com/vltest/vltest/pkg/rpc"
	"github.com/vltest/vltest/pkg/task"
)

var (
	_ api.Runner        = (*LocalExecRunner)(nil)
	_ api.Healthchecker = (*LocalExecRunner)(nil)
)

const defaultCaseTimeout = 10 * time.Minute

// LocalExecRunnerConfig is the configuration object of this runner. Boolean
// values are expressed in a way that zero value (false) is the default
// setting.
type LocalExecRunnerConfig struct {
	// Parallelism caps how many cases are evaluated at once (default: 1).
	Parallelism int `toml:"parallelism" overridable:"yes"`
	// StopOnFailure stops scheduling further cases once one has failed
	// (default: false). Cases already in flight run to completion.
	StopOnFailure bool `toml:"stop_on_failure" overridable:"yes"`
	// CaseTimeout bounds a single case evaluation, compile and native build
	// included. Cases carrying their own timeout are not affected (default:
	// the compiler timeout from the env config, or 10m).
	CaseTimeout string `toml:"case_timeout" overridable:"yes"`
}

// defaultConfig is the default configuration. Incoming configurations are
// coalesced on top of this object.
var defaultConfig = LocalExecRunnerConfig{
	Parallelism: 1,
}

// LocalExecRunner evaluates test cases by invoking the compiler under test
// directly on the host, one process per case compile. Each case gets a
// private work directory under <outputs>/<suite>/<run id>/<case>, holding
// the captured compiler log and, for native builds, the obj_dir tree.
type LocalExecRunner struct{}

func (*LocalExecRunner) ID() string {
	return "local:exec"
}

func (*LocalExecRunner) ConfigType() reflect.Type {
	return reflect.TypeOf(LocalExecRunnerConfig{})
}

func (r *LocalExecRunner) Run(ctx context.Context, input *api.RunInput, ow *rpc.OutputWriter) (interface{}, error) {
	in, ok := input.RunnerConfig.(*LocalExecRunnerConfig)
	if !ok {
		return nil, fmt.Errorf("expected runner configuration of type %s", r.ConfigType())
	}

	// Merge the incoming configuration on top of the defaults.
	cfg := defaultConfig
	if err := mergo.Merge(&cfg, *in, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("error while merging configurations: %w", err)
	}

	scenario, ok := harness.ResolveScenario(input.Scenario, input.EnvConfig.Scenarios)
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", input.Scenario)
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	timeout, err := r.caseTimeout(&cfg, input)
	if err != nil {
		return nil, err
	}

	runDir := filepath.Join(input.EnvConfig.Dirs().Outputs(), input.SuiteName, input.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	log := ow.With("runner", r.ID(), "run_id", input.RunID)
	log.Infow("evaluating cases",
		"suite", input.SuiteName,
		"scenario", scenario.Tag,
		"cases", len(input.Cases),
		"parallelism", parallelism,
		"compile_only", input.CompileOnly,
	)

	var (
		pretty  = NewPrettyPrinter(ow.StdoutWriter(), true)
		result  = newResult()
		resmu   sync.Mutex
		stopped uint32
	)

	eg, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, parallelism)

	for _, tc := range input.Cases {
		tc := tc

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
		}
		if gctx.Err() != nil {
			break
		}

		eg.Go(func() error {
			defer func() { <-sem }()

			if atomic.LoadUint32(&stopped) == 1 {
				log.Debugw("case not evaluated; an earlier case failed", "case", tc.Name)
				return nil
			}

			rep, err := r.evaluateCase(gctx, input, scenario, tc, timeout, runDir, ow)
			if err != nil {
				return err
			}

			resmu.Lock()
			result.Outcomes[rep.CaseName] = &CaseOutcome{
				Outcome:    rep.Outcome,
				Reason:     rep.Reason,
				Took:       rep.Took,
				CompileLog: rep.CompileLog,
			}
			result.Journal.Events[rep.CaseName] = journalLine(rep)
			resmu.Unlock()

			pretty.Append(rep)

			if cfg.StopOnFailure && rep.Outcome == task.OutcomeFailure {
				atomic.StoreUint32(&stopped, 1)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("run aborted: %w", err)
	}

	result.aggregate()

	passed, failed, skipped := result.counts()
	log.Infow("run finished",
		"outcome", result.Outcome,
		"passed", passed,
		"failed", failed,
		"skipped", skipped,
	)
	return result, nil
}

// evaluateCase builds the run context for a single case and drives it to
// completion. Only infrastructure errors propagate; outcomes of the
// evaluation itself land in the report.
func (r *LocalExecRunner) evaluateCase(ctx context.Context, input *api.RunInput, scenario harness.Scenario, tc *api.TestCase, timeout time.Duration, runDir string, ow *rpc.OutputWriter) (*harness.Report, error) {
	if d := tc.Timeout.Duration; d > 0 {
		timeout = d
	}

	t, err := harness.New(harness.Options{
		Case:                tc,
		Scenario:            scenario,
		Compiler:            input.EnvConfig.Compiler,
		SuiteDir:            input.SuiteDir,
		WorkDir:             filepath.Join(runDir, tc.Name),
		DefaultCompileFlags: input.DefaultCompileFlags,
		CompileOnly:         input.CompileOnly,
		Logger:              ow.SugaredLogger,
	})
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rep := harness.Evaluate(cctx, t)

	// A per-case deadline is a failure of that case; only cancellation of
	// the whole run keeps the canceled outcome.
	if rep.Outcome == task.OutcomeCanceled && ctx.Err() == nil {
		rep.Outcome = task.OutcomeFailure
		rep.Reason = fmt.Sprintf("%s; case exceeded its %s timeout", rep.Reason, timeout)
	}
	return rep, nil
}

func (r *LocalExecRunner) caseTimeout(cfg *LocalExecRunnerConfig, input *api.RunInput) (time.Duration, error) {
	if cfg.CaseTimeout != "" {
		d, err := time.ParseDuration(cfg.CaseTimeout)
		if err != nil {
			return 0, fmt.Errorf("invalid case_timeout: %w", err)
		}
		return d, nil
	}
	if d := input.EnvConfig.Compiler.Timeout.Duration; d > 0 {
		return d, nil
	}
	return defaultCaseTimeout, nil
}

// journalLine renders one case's journal entry. The eval ID ties the entry to
// the VLTEST_EVAL_ID the compiler process saw.
func journalLine(rep *harness.Report) string {
	if rep.Reason == "" {
		return fmt.Sprintf("[%s] %s", rep.EvalID, rep.Outcome)
	}
	return fmt.Sprintf("[%s] %s: %s", rep.EvalID, rep.Outcome, rep.Reason)
}

func (*LocalExecRunner) CollectOutputs(ctx context.Context, input *api.CollectionInput, ow *rpc.OutputWriter) error {
	return gzipRunOutputs(ctx, input.EnvConfig.Dirs().Outputs(), input, ow)
}

// Healthcheck verifies the runner's host preconditions: the directory tree it
// writes into, and the toolchain binaries it spawns. Directory checks are
// fixable; a missing compiler is on the user.
func (r *LocalExecRunner) Healthcheck(ctx context.Context, engine api.Engine, ow *rpc.OutputWriter, fix bool) (*api.HealthcheckReport, error) {
	cfg := engine.EnvConfig()
	dirs := cfg.Dirs()

	hh := &healthcheck.Helper{}

	hh.Enlist("suites-dir",
		healthcheck.DirExistsChecker(dirs.Suites()),
		healthcheck.DirExistsFixer(dirs.Suites()))

	hh.Enlist("work-dir",
		healthcheck.DirExistsChecker(dirs.Work()),
		healthcheck.DirExistsFixer(dirs.Work()))

	hh.Enlist("outputs-dir",
		healthcheck.DirExistsChecker(dirs.Outputs()),
		healthcheck.DirExistsFixer(dirs.Outputs()))

	hh.Enlist("outputs-dir-writable",
		healthcheck.DirWritableChecker(dirs.Outputs()),
		nil)

	hh.Enlist(fmt.Sprintf("compiler-binary (%s)", cfg.Compiler.Bin),
		healthcheck.BinaryResolvableChecker(cfg.Compiler.Bin),
		nil)

	hh.Enlist(fmt.Sprintf("make-binary (%s)", cfg.Compiler.MakeBin),
		healthcheck.BinaryResolvableChecker(cfg.Compiler.MakeBin),
		nil)

	if ep := cfg.Daemon.InfluxDBEndpoint; ep != "" {
		hh.Enlist("influxdb-endpoint",
			healthcheck.DialableChecker("tcp", dialAddr(ep)),
			nil)
	}

	if err := hh.RunChecks(ctx, fix); err != nil {
		return nil, err
	}
	return hh.Report(), nil
}

// dialAddr reduces an endpoint to a host:port for net.Dial; bare host:port
// strings pass through.
func dialAddr(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}
