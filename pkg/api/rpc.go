package api

import (
	"bytes"

	"github.com/vltest/vltest/pkg/task"
)

// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
// ~~~~~~ Request payloads ~~~~~~
// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~

// DescribeRequest is the request struct for the `describe` function.
type DescribeRequest struct {
	Suite string `json:"suite"`
}

// RunRequest is the request struct for the `run` function.
type RunRequest struct {
	// Suite is the name of the suite to run cases from.
	Suite string `json:"suite"`

	// Scenario is the scenario tag to evaluate the cases under.
	Scenario string `json:"scenario"`

	// Cases names the cases to run. Empty means every case in the suite.
	Cases []string `json:"cases"`

	// Runner selects the runner to use.
	Runner string `json:"runner"`

	// Priority orders this task relative to others in the queue; higher runs
	// first.
	Priority int `json:"priority"`

	// RunnerConfig carries user-provided runner configuration overrides. They
	// take precedence over the env and suite configuration.
	RunnerConfig map[string]interface{} `json:"runner_config"`

	// Manifest is the suite manifest, resolved client-side.
	Manifest TestSuiteManifest `json:"manifest"`

	CreatedBy task.CreatedBy `json:"created_by"`
}

// BuildRequest is the request struct for the `build` function. A build task
// compiles cases without evaluating their log assertions.
type BuildRequest struct {
	Suite        string                 `json:"suite"`
	Scenario     string                 `json:"scenario"`
	Cases        []string               `json:"cases"`
	Runner       string                 `json:"runner"`
	Priority     int                    `json:"priority"`
	RunnerConfig map[string]interface{} `json:"runner_config"`
	Manifest     TestSuiteManifest      `json:"manifest"`
	CreatedBy    task.CreatedBy         `json:"created_by"`
}

type OutputsRequest struct {
	Runner string `json:"runner"`
	RunID  string `json:"run_id"`
}

type HealthcheckRequest struct {
	Runner string `json:"runner"`
	Fix    bool   `json:"fix"`
}

type TasksRequest struct {
	Types  []task.Type  `json:"types"`
	States []task.State `json:"states"`
}

type LogsRequest struct {
	TaskID string `json:"task_id"`

	// Follow streams the log until the task finishes.
	Follow bool `json:"follow"`

	// CancelWithContext cancels the task when the request's context is
	// canceled, e.g. when the user interrupts a followed log.
	CancelWithContext bool `json:"cancel_with_context"`
}

type KillRequest struct {
	TaskID string `json:"task_id"`
}

// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~
// ~~~~~~ Response payloads ~~~~~~
// ~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~

// RunResponse is the response struct for the `run` and `build` functions; it
// reports the ID of the queued task.
type RunResponse struct {
	TaskID string `json:"task_id"`
}

type CollectResponse struct {
	File   bytes.Buffer
	Exists bool
}

type HealthcheckResponse = HealthcheckReport
