package api

import (
	"context"

	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/rpc"
	"github.com/vltest/vltest/pkg/task"
)

// Engine is the interface the daemon programs against. It queues tasks,
// resolves runners, and exposes the task store.
type Engine interface {
	RunnerByName(name string) (Runner, bool)
	ListRunners() map[string]Runner

	QueueRun(request *RunRequest) (string, error)
	QueueBuild(request *BuildRequest) (string, error)

	DoCollectOutputs(ctx context.Context, runner string, runID string, ow *rpc.OutputWriter) error
	DoHealthcheck(ctx context.Context, runner string, fix bool, ow *rpc.OutputWriter) (*HealthcheckReport, error)

	Tasks(filters TasksFilters) ([]task.Task, error)
	Status(id string) (*task.Task, error)
	Logs(ctx context.Context, id string, follow bool, cancel bool, ow *rpc.OutputWriter) (*task.Task, error)
	Kill(id string) error

	EnvConfig() config.EnvConfig
	Context() context.Context
}

// TasksFilters selects tasks by type and state when listing them.
type TasksFilters struct {
	Types  []task.Type
	States []task.State
}
