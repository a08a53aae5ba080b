package task

import (
	"fmt"
	"time"
)

// Type discriminates the kinds of work the engine schedules.
type Type string

const (
	// TypeRun is a full evaluation: compile, assert, report per-case outcomes.
	TypeRun Type = "run"
	// TypeBuild is a compile-only smoke pass: cases are compiled (and
	// natively built where requested), but log assertions are skipped.
	TypeBuild Type = "build"
)

// State represents the lifecycle of a task.
//
// StateScheduled: initial state, the task sits in the queue.
// StateProcessing: a worker has claimed the task.
// StateComplete: work finished; check the task result.
// StateCanceled: the task was killed before or during processing.
type State string

const (
	StateScheduled  State = "scheduled"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
	StateCanceled   State = "canceled"
)

// Outcome is the aggregate verdict of a task, derived from its result.
type Outcome string

const (
	OutcomeUnknown  Outcome = "unknown"
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeCanceled Outcome = "canceled"
)

// DatedState is an entry in the task state log.
type DatedState struct {
	Created time.Time `json:"created"`
	State   State     `json:"state"`
}

// CreatedBy records who requested the task.
type CreatedBy struct {
	User string `json:"user"`
}

// Task is the schema for the work queue and the wire format returned to
// clients querying the state of scheduled, running or archived tasks.
type Task struct {
	Version   int          `json:"version"`
	Priority  int          `json:"priority"`
	ID        string       `json:"id"`
	Suite     string       `json:"suite"`
	Scenario  string       `json:"scenario"`
	Runner    string       `json:"runner"`
	Cases     []string     `json:"cases"`
	Type      Type         `json:"type"`
	Input     interface{}  `json:"input"`
	Result    interface{}  `json:"result"`
	Error     string       `json:"error"`
	CreatedBy CreatedBy    `json:"created_by"`
	States    []DatedState `json:"states"`
}

// Created returns the time the task entered the queue.
func (t *Task) Created() time.Time {
	if len(t.States) == 0 {
		return time.Time{}
	}
	return t.States[0].Created
}

// State returns the latest entry of the state log.
func (t *Task) State() DatedState {
	if len(t.States) == 0 {
		return DatedState{}
	}
	return t.States[len(t.States)-1]
}

// Took returns the wall-clock time between scheduling and the latest state
// transition.
func (t *Task) Took() time.Duration {
	return t.State().Created.Sub(t.Created())
}

// Name is a human-readable handle used in logs.
func (t *Task) Name() string {
	return fmt.Sprintf("%s-%s", t.Type, t.ID)
}

func (t *Task) IsCanceled() bool {
	return t.State().State == StateCanceled
}
