package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/logrusorgru/aurora"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/data"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/metrics"
	"github.com/vltest/vltest/pkg/rpc"
	"github.com/vltest/vltest/pkg/task"
)

// taskTimeout bounds a whole task, queue wait excluded.
const taskTimeout = 30 * time.Minute

// startSupervisor launches the workers that drain the task queue.
func (e *Engine) startSupervisor(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		go e.worker(i)
	}
}

// worker claims tasks off the queue, one at a time, and drives them to
// completion. Task output is teed to a per-task log file so that clients can
// retrieve or follow it later.
func (e *Engine) worker(n int) {
	log := logging.S().With("worker_id", n)
	log.Infow("supervisor worker started")

	for {
		tsk, err := e.queue.Pop()
		if err == task.ErrQueueEmpty {
			time.Sleep(time.Second)
			continue
		}
		if err != nil {
			log.Errorw("error while popping task from the queue", "err", err)
			continue
		}

		ctx, cancel := context.WithTimeout(e.ctx, taskTimeout)

		// Make the task killable: closing its signal channel cancels ctx.
		ch := make(chan int)
		e.signalsLk.Lock()
		e.signals[tsk.ID] = ch
		e.signalsLk.Unlock()

		go func() {
			select {
			case <-ch:
				cancel()
			case <-ctx.Done():
			}
		}()

		log.Infow("performing task", "task", tsk.Name())

		if err := e.store.AppendTaskState(tsk.ID, task.StateProcessing); err != nil {
			log.Errorw("could not mark task as processing", "task", tsk.Name(), "err", err)
		}

		file, err := os.Create(filepath.Join(e.envcfg.Dirs().Daemon(), tsk.ID+".out"))
		if err != nil {
			log.Errorw("could not create task output file", "task", tsk.Name(), "err", err)
			_ = e.store.MarkCompleted(tsk.ID, err, nil)
			e.releaseSignal(tsk.ID)
			cancel()
			continue
		}

		ow := rpc.NewFileOutputWriter(file)

		var result interface{}
		switch tsk.Type {
		case task.TypeRun:
			result, err = e.doRun(ctx, tsk.ID, tsk.Input, ow)
		case task.TypeBuild:
			result, err = e.doBuild(ctx, tsk.ID, tsk.Input, ow)
		default:
			err = fmt.Errorf("unknown task type: %s", tsk.Type)
		}

		if err != nil {
			log.Errorw("task finished in error", "task", tsk.Name(), "err", err)
		}

		if serr := e.store.MarkCompleted(tsk.ID, err, result); serr != nil {
			log.Errorw("could not archive task", "task", tsk.Name(), "err", serr)
		}

		e.releaseSignal(tsk.ID)
		cancel()
		_ = file.Close()

		log.Infow("task completed", "task", tsk.Name(), "took", tsk.Took().Truncate(time.Millisecond).String())
	}
}

// releaseSignal removes the task's kill channel once the task is no longer
// cancelable. A no-op if Kill already claimed it.
func (e *Engine) releaseSignal(id string) {
	e.signalsLk.Lock()
	defer e.signalsLk.Unlock()
	delete(e.signals, id)
}

func (e *Engine) doRun(ctx context.Context, id string, input interface{}, ow *rpc.OutputWriter) (interface{}, error) {
	req := new(api.RunRequest)
	if err := data.Decode(input, req); err != nil {
		return nil, fmt.Errorf("error while decoding run request: %w", err)
	}
	return e.doEvaluate(ctx, id, req, false, ow)
}

// doBuild is a compile-only doRun. The request shapes are identical, so the
// build request is recast and evaluated with assertions disabled.
func (e *Engine) doBuild(ctx context.Context, id string, input interface{}, ow *rpc.OutputWriter) (interface{}, error) {
	breq := new(api.BuildRequest)
	if err := data.Decode(input, breq); err != nil {
		return nil, fmt.Errorf("error while decoding build request: %w", err)
	}

	req := &api.RunRequest{
		Suite:        breq.Suite,
		Scenario:     breq.Scenario,
		Cases:        breq.Cases,
		Runner:       breq.Runner,
		Priority:     breq.Priority,
		RunnerConfig: breq.RunnerConfig,
		Manifest:     breq.Manifest,
		CreatedBy:    breq.CreatedBy,
	}
	return e.doEvaluate(ctx, id, req, true, ow)
}

// doEvaluate resolves the suite, prepares the requested cases and hands them
// to the runner. It is the common backend of run and build tasks.
func (e *Engine) doEvaluate(ctx context.Context, id string, req *api.RunRequest, compileOnly bool, ow *rpc.OutputWriter) (interface{}, error) {
	run, ok := e.RunnerByName(req.Runner)
	if !ok {
		return nil, fmt.Errorf("unknown runner: %s", req.Runner)
	}

	// Check the runner's health and apply fixes before doing any work.
	if hc, ok := run.(api.Healthchecker); ok {
		ow.Infow("performing healthcheck on runner", "runner", req.Runner)

		report, err := hc.Healthcheck(ctx, e, ow, true)
		if err != nil {
			return nil, fmt.Errorf("healthcheck errored: %w", err)
		}

		if !report.FixesSucceeded() {
			return nil, fmt.Errorf("healthcheck fixes failed; aborting:\n%s", report)
		}

		if !report.ChecksSucceeded() {
			ow.Warnf(aurora.Bold(aurora.Yellow("some healthchecks failed, but continuing")).String())
		} else {
			ow.Infof(aurora.Bold(aurora.Green("healthcheck: ok")).String())
		}
	}

	suiteDir := filepath.Join(e.envcfg.Dirs().Suites(), req.Suite)
	if fi, err := os.Stat(suiteDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("suite %q is not imported", req.Suite)
	}

	// Prefer the manifest resolved client-side; fall back to the manifest in
	// the imported suite.
	manifest := &req.Manifest
	if manifest.Name == "" {
		var err error
		manifest, err = e.loadManifest(suiteDir)
		if err != nil {
			return nil, err
		}
	}

	cases, err := manifest.FilterCases(req.Cases)
	if err != nil {
		return nil, err
	}

	prepared := make([]*api.TestCase, 0, len(cases))
	for _, tc := range cases {
		p, err := manifest.PrepareCase(tc.Name)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}

	// Coalesce the runner config. Precedence: env < manifest < request.
	var cfg config.CoalescedConfig
	cfg = cfg.Append(e.envcfg.Runners[req.Runner])
	cfg = cfg.Append(manifest.Runners[req.Runner])
	cfg = cfg.Append(req.RunnerConfig)

	obj, err := cfg.CoalesceIntoType(run.ConfigType())
	if err != nil {
		return nil, fmt.Errorf("error while coalescing configuration values: %w", err)
	}

	input := &api.RunInput{
		RunID:               id,
		EnvConfig:           *e.envcfg,
		RunnerConfig:        obj,
		SuiteName:           req.Suite,
		SuiteDir:            suiteDir,
		Scenario:            req.Scenario,
		Cases:               prepared,
		DefaultCompileFlags: manifest.Defaults.CompileFlags,
		CompileOnly:         compileOnly,
	}

	ow.Infow("starting evaluation",
		"suite", req.Suite,
		"scenario", req.Scenario,
		"cases", len(prepared),
		"runner", req.Runner,
		"compile_only", compileOnly,
	)

	result, err := run.Run(ctx, input, ow)
	switch {
	case err == nil:
		ow.Infow("evaluation finished", "suite", req.Suite, "run_id", id)
	case errors.Is(err, context.Canceled):
		ow.Warnw("evaluation canceled", "suite", req.Suite, "run_id", id)
	default:
		ow.Warnw("evaluation finished in error", "suite", req.Suite, "run_id", id, "err", err)
	}

	if err == nil && !compileOnly && e.recorder != nil {
		e.record(id, req, result)
	}

	return result, err
}

// record pushes the run's per-case outcomes to the metrics recorder. Metrics
// are best-effort and never fail the task.
func (e *Engine) record(id string, req *api.RunRequest, result interface{}) {
	res := data.DecodeRunnerResult(result)

	m := &metrics.RunMeasurement{
		TaskID:   id,
		Suite:    req.Suite,
		Scenario: req.Scenario,
		Runner:   req.Runner,
	}
	for name, oc := range res.Outcomes {
		m.Cases = append(m.Cases, metrics.CaseMeasurement{
			Name:    name,
			Outcome: string(oc.Outcome),
			Took:    oc.Took,
		})
	}

	if err := e.recorder.RecordRun(m); err != nil {
		logging.S().Warnw("failed to record run metrics", "run_id", id, "err", err)
	}
}
