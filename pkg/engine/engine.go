package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/xid"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/harness"
	"github.com/vltest/vltest/pkg/metrics"
	"github.com/vltest/vltest/pkg/rpc"
	"github.com/vltest/vltest/pkg/runner"
	"github.com/vltest/vltest/pkg/task"
)

// AllRunners enumerates all runners known to the system.
var AllRunners = []api.Runner{
	&runner.LocalExecRunner{},
}

// manifestCacheSize bounds the daemon-side manifest cache. Entries are keyed
// by path and mtime, so edited manifests are re-read.
const manifestCacheSize = 32

// Engine is the central runtime object of the daemon. It knows about all
// runners and the imported test suites, owns the task queue, and supervises
// the workers draining it.
type Engine struct {
	lk sync.RWMutex
	// runners binds runners to their identifying key.
	runners map[string]api.Runner
	envcfg  *config.EnvConfig
	ctx     context.Context
	store   *task.Storage
	queue   *task.Queue

	// signals contains a channel for each running task; closing a channel
	// cancels the task.
	signals   map[string]chan int
	signalsLk sync.RWMutex

	// manifests caches parsed suite manifests.
	manifests *lru.Cache

	// recorder receives per-case outcomes after each run; nil when metrics
	// are not configured.
	recorder metrics.Recorder
}

var _ api.Engine = (*Engine)(nil)

type EngineConfig struct {
	Runners   []api.Runner
	EnvConfig *config.EnvConfig
	Recorder  metrics.Recorder
}

func NewEngine(cfg *EngineConfig) (*Engine, error) {
	var (
		store *task.Storage
		err   error
	)

	if cfg.EnvConfig.Daemon.TasksInMemory {
		store, err = task.NewMemoryTaskStorage()
	} else {
		path := filepath.Join(cfg.EnvConfig.Dirs().Home(), "tasks.db")
		store, err = task.NewTaskStorage(path)
	}
	if err != nil {
		return nil, err
	}

	queue, err := task.NewQueue(store, cfg.EnvConfig.Daemon.QueueSize)
	if err != nil {
		return nil, err
	}

	manifests, err := lru.New(manifestCacheSize)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		runners:   make(map[string]api.Runner, len(cfg.Runners)),
		envcfg:    cfg.EnvConfig,
		ctx:       context.Background(),
		store:     store,
		queue:     queue,
		signals:   make(map[string]chan int),
		manifests: manifests,
		recorder:  cfg.Recorder,
	}

	for _, r := range cfg.Runners {
		e.runners[r.ID()] = r
	}

	e.startSupervisor(cfg.EnvConfig.Daemon.Workers)

	return e, nil
}

// NewDefaultEngine builds an engine with every known runner, and an InfluxDB
// recorder when the env config carries an endpoint.
func NewDefaultEngine(ecfg *config.EnvConfig) (*Engine, error) {
	var rec metrics.Recorder
	if ep := ecfg.Daemon.InfluxDBEndpoint; ep != "" {
		var err error
		rec, err = metrics.NewInfluxRecorder(ep)
		if err != nil {
			return nil, err
		}
	}

	return NewEngine(&EngineConfig{
		Runners:   AllRunners,
		EnvConfig: ecfg,
		Recorder:  rec,
	})
}

func (e *Engine) RunnerByName(name string) (api.Runner, bool) {
	e.lk.RLock()
	defer e.lk.RUnlock()

	m, ok := e.runners[name]
	return m, ok
}

func (e *Engine) ListRunners() map[string]api.Runner {
	e.lk.RLock()
	defer e.lk.RUnlock()

	m := make(map[string]api.Runner, len(e.runners))
	for k, v := range e.runners {
		m[k] = v
	}
	return m
}

// QueueRun validates a run request and schedules it, returning the task ID.
func (e *Engine) QueueRun(request *api.RunRequest) (string, error) {
	if err := e.checkRequest(request.Runner, request.Scenario); err != nil {
		return "", err
	}

	id := xid.New().String()
	err := e.queue.Push(&task.Task{
		Version:   0,
		Priority:  request.Priority,
		ID:        id,
		Suite:     request.Suite,
		Scenario:  request.Scenario,
		Runner:    request.Runner,
		Cases:     request.Cases,
		Type:      task.TypeRun,
		Input:     request,
		CreatedBy: request.CreatedBy,
		States: []task.DatedState{
			{
				State:   task.StateScheduled,
				Created: time.Now().UTC(),
			},
		},
	})

	return id, err
}

// QueueBuild schedules a compile-only pass over the requested cases.
func (e *Engine) QueueBuild(request *api.BuildRequest) (string, error) {
	if err := e.checkRequest(request.Runner, request.Scenario); err != nil {
		return "", err
	}

	id := xid.New().String()
	err := e.queue.Push(&task.Task{
		Version:   0,
		Priority:  request.Priority,
		ID:        id,
		Suite:     request.Suite,
		Scenario:  request.Scenario,
		Runner:    request.Runner,
		Cases:     request.Cases,
		Type:      task.TypeBuild,
		Input:     request,
		CreatedBy: request.CreatedBy,
		States: []task.DatedState{
			{
				State:   task.StateScheduled,
				Created: time.Now().UTC(),
			},
		},
	})

	return id, err
}

// checkRequest rejects requests that name an unknown runner or scenario
// before they are queued; everything else is validated by the worker.
func (e *Engine) checkRequest(runnerName, scenario string) error {
	if _, ok := e.RunnerByName(runnerName); !ok {
		return fmt.Errorf("unknown runner: %s", runnerName)
	}
	if _, ok := harness.ResolveScenario(scenario, e.envcfg.Scenarios); !ok {
		return fmt.Errorf("unknown scenario: %s", scenario)
	}
	return nil
}

func (e *Engine) DoCollectOutputs(ctx context.Context, runnerName string, runID string, ow *rpc.OutputWriter) error {
	run, ok := e.RunnerByName(runnerName)
	if !ok {
		return fmt.Errorf("unknown runner: %s", runnerName)
	}

	var cfg config.CoalescedConfig

	// Get the env config for the runner.
	cfg = cfg.Append(e.envcfg.Runners[runnerName])

	// Coalesce all configurations and deserialize into the config type
	// mandated by the runner.
	obj, err := cfg.CoalesceIntoType(run.ConfigType())
	if err != nil {
		return fmt.Errorf("error while coalescing configuration values: %w", err)
	}

	input := &api.CollectionInput{
		RunnerID:     runnerName,
		RunID:        runID,
		EnvConfig:    *e.envcfg,
		RunnerConfig: obj,
	}

	return run.CollectOutputs(ctx, input, ow)
}

func (e *Engine) DoHealthcheck(ctx context.Context, runnerName string, fix bool, ow *rpc.OutputWriter) (*api.HealthcheckReport, error) {
	run, ok := e.RunnerByName(runnerName)
	if !ok {
		return nil, fmt.Errorf("unknown runner: %s", runnerName)
	}

	hc, ok := run.(api.Healthchecker)
	if !ok {
		return nil, fmt.Errorf("runner %s does not support healthchecks", runnerName)
	}

	ow.Infof("checking runner: %s", runnerName)

	return hc.Healthcheck(ctx, e, ow, fix)
}

// EnvConfig returns the EnvConfig for this Engine.
func (e *Engine) EnvConfig() config.EnvConfig {
	return *e.envcfg
}

func (e *Engine) Context() context.Context {
	return e.ctx
}

// Tasks returns the tasks matching the given filters, restricted to the past
// 24 hours, oldest first.
func (e *Engine) Tasks(filters api.TasksFilters) ([]task.Task, error) {
	var (
		from = time.Now().UTC().Add(-24 * time.Hour)
		to   = time.Now().UTC()
	)

	states := filters.States
	if len(states) == 0 {
		states = []task.State{task.StateScheduled, task.StateProcessing, task.StateComplete, task.StateCanceled}
	}

	prefixes := make(map[string]struct{}, 3)
	for _, state := range states {
		switch state {
		case task.StateScheduled:
			prefixes[task.QUEUEPREFIX] = struct{}{}
		case task.StateProcessing:
			prefixes[task.CURRENTPREFIX] = struct{}{}
		case task.StateComplete, task.StateCanceled:
			prefixes[task.ARCHIVEPREFIX] = struct{}{}
		}
	}

	var res []task.Task
	for prefix := range prefixes {
		tsks, err := e.store.Range(prefix, from, to)
		if err != nil {
			return nil, err
		}

		for _, tsk := range tsks {
			if !matchState(tsk, states) || !matchType(tsk, filters.Types) {
				continue
			}
			res = append(res, *tsk)
		}
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Created().Before(res[j].Created()) })
	return res, nil
}

func matchState(tsk *task.Task, states []task.State) bool {
	current := tsk.State().State
	for _, s := range states {
		if s == current {
			return true
		}
	}
	return false
}

func matchType(tsk *task.Task, types []task.Type) bool {
	if len(types) == 0 {
		return true
	}
	for _, tp := range types {
		if tp == tsk.Type {
			return true
		}
	}
	return false
}

// Status returns the stored record of a task, wherever it currently lives.
func (e *Engine) Status(id string) (*task.Task, error) {
	tsk, err := e.store.Get(task.ARCHIVEPREFIX, id)
	if err == nil {
		return tsk, nil
	}
	if err != task.ErrNotFound {
		return nil, err
	}
	tsk, err = e.store.Get(task.CURRENTPREFIX, id)
	if err == nil {
		return tsk, nil
	}
	if err != task.ErrNotFound {
		return nil, err
	}
	return e.store.Get(task.QUEUEPREFIX, id)
}

// Logs streams the task's output log. With follow set, it waits for the task
// to leave the queue, then tails the log until the task finishes; cancel
// additionally kills the task if the caller goes away.
func (e *Engine) Logs(ctx context.Context, id string, follow bool, cancel bool, ow *rpc.OutputWriter) (*task.Task, error) {
	path := filepath.Join(e.EnvConfig().Dirs().Daemon(), id+".out")

	if !follow {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if _, err := ow.WriteProgress(append(scanner.Bytes(), '\n')); err != nil {
				return nil, err
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}

		return e.Status(id)
	}

	// Wait for the task to start.
	for {
		tsk, err := e.Status(id)
		if err != nil {
			return nil, err
		}

		if tsk.State().State != task.StateScheduled {
			break
		}

		select {
		case <-ctx.Done():
			return tsk, nil
		case <-time.After(500 * time.Millisecond):
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	reader := bufio.NewReader(file)

	var prevBytes []byte

Outer:
	for {
		select {
		case <-ctx.Done():
			if cancel {
				e.killRunning(id)
			}
			break Outer
		default:
			running := e.isRunning(id)

			line, err := reader.ReadBytes('\n')

			if err == io.EOF {
				if len(line) != 0 {
					// We read part of a line, so it's not actually the end of
					// the file yet.
					prevBytes = append(prevBytes, line...)
					continue
				}

				if running {
					continue
				}
				break Outer
			} else if err != nil {
				return nil, err
			}

			if prevBytes != nil {
				line = append(prevBytes, line...)
				prevBytes = nil
			}

			if _, err = ow.WriteProgress(line); err != nil {
				return nil, err
			}
		}
	}

	return e.Status(id)
}

// Kill cancels a task: a running task has its context canceled, a scheduled
// one is withdrawn from the queue. Finished tasks cannot be killed.
func (e *Engine) Kill(id string) error {
	if e.killRunning(id) {
		return nil
	}

	if e.queue.Remove(id) {
		return e.store.AppendTaskState(id, task.StateCanceled)
	}

	tsk, err := e.Status(id)
	if err != nil {
		return err
	}
	return fmt.Errorf("task %s is not running or scheduled (state: %s)", id, tsk.State().State)
}

// killRunning closes the task's signal channel if it is currently being
// processed, which cancels the worker's context. It reports whether a
// running task was found.
func (e *Engine) killRunning(id string) bool {
	e.signalsLk.Lock()
	defer e.signalsLk.Unlock()

	ch, ok := e.signals[id]
	if !ok {
		return false
	}
	delete(e.signals, id)
	close(ch)
	return true
}

func (e *Engine) isRunning(id string) bool {
	e.signalsLk.RLock()
	defer e.signalsLk.RUnlock()

	_, ok := e.signals[id]
	return ok
}

// loadManifest parses the manifest of an imported suite, consulting the
// cache first. Cache entries are invalidated by mtime.
func (e *Engine) loadManifest(suiteDir string) (*api.TestSuiteManifest, error) {
	path := filepath.Join(suiteDir, api.ManifestFilename)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s|%d", path, fi.ModTime().UnixNano())
	if m, ok := e.manifests.Get(key); ok {
		return m.(*api.TestSuiteManifest), nil
	}

	m, err := api.LoadManifest(suiteDir)
	if err != nil {
		return nil, err
	}

	e.manifests.Add(key, m)
	return m, nil
}
