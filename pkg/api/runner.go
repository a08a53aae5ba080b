package api

import (
	"context"
	"reflect"

	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/rpc"
)

// Runner is the interface to be implemented by all runners. A runner takes a
// set of prepared test cases and evaluates them under a scenario, producing
// an outcome per case.
type Runner interface {
	// ID returns the canonical identifier for this runner.
	ID() string

	// Run evaluates the cases in the input and returns the aggregated result.
	Run(ctx context.Context, input *RunInput, ow *rpc.OutputWriter) (interface{}, error)

	// ConfigType returns the configuration type of this runner.
	ConfigType() reflect.Type

	// CollectOutputs gathers the outputs from a run, and produces a gzipped
	// tarball with the contents, writing it to the output writer's binary
	// channel.
	CollectOutputs(context.Context, *CollectionInput, *rpc.OutputWriter) error
}

// RunInput encapsulates the input options for evaluating a set of test cases.
type RunInput struct {
	// RunID is the run id assigned to this job by the Engine.
	RunID string

	// EnvConfig is the env configuration of the engine. Not a pointer to
	// force a copy.
	EnvConfig config.EnvConfig

	// RunnerConfig is the configuration of the runner sourced from the env
	// configuration and the suite manifest, coalesced with any user-provided
	// overrides.
	RunnerConfig interface{}

	// SuiteName is the name of the suite the cases belong to.
	SuiteName string

	// SuiteDir is the directory holding the suite's sources.
	SuiteDir string

	// Scenario is the scenario tag to evaluate the cases under.
	Scenario string

	// Cases are the prepared test cases to evaluate, with suite defaults
	// already applied.
	Cases []*TestCase

	// DefaultCompileFlags are the suite-level flags inserted before each
	// case's own compile flags.
	DefaultCompileFlags []string

	// CompileOnly skips log assertions; cases either compile or they don't.
	CompileOnly bool
}

// CollectionInput encapsulates the input options for collecting a run's
// outputs.
type CollectionInput struct {
	// EnvConfig is the env configuration of the engine. Not a pointer to
	// force a copy.
	EnvConfig config.EnvConfig
	RunID     string
	RunnerID  string

	// RunnerConfig is the configuration of the runner sourced from the env
	// configuration, coalesced with any user-provided overrides.
	RunnerConfig interface{}
}
