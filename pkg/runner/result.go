package runner

import (
	"time"

	"github.com/vltest/vltest/pkg/task"
)

// Result is the aggregated verdict of a run, stored on the task record and
// returned to clients. Outcomes carries one entry per evaluated case; cases
// not reached (stop-on-failure, cancellation) have no entry.
type Result struct {
	Outcome  task.Outcome            `json:"outcome"`
	Outcomes map[string]*CaseOutcome `json:"outcomes"`
	Journal  *Journal                `json:"journal"`
}

// CaseOutcome is the per-case slice of a Result.
type CaseOutcome struct {
	Outcome    task.Outcome  `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Took       time.Duration `json:"took"`
	CompileLog string        `json:"compile_log"`
}

// Journal keeps a human-readable trace of what happened to each case, for
// inspection after the run directory is gone.
type Journal struct {
	Events map[string]string `json:"events"`
}

func newResult() *Result {
	return &Result{
		Outcome:  task.OutcomeUnknown,
		Outcomes: make(map[string]*CaseOutcome),
		Journal: &Journal{
			Events: make(map[string]string),
		},
	}
}

// aggregate folds the per-case outcomes into the run verdict: any failure
// fails the run, otherwise any pass makes it a success, otherwise everything
// was skipped.
func (r *Result) aggregate() {
	var failed, passed bool
	for _, co := range r.Outcomes {
		switch co.Outcome {
		case task.OutcomeFailure, task.OutcomeCanceled, task.OutcomeUnknown:
			failed = true
		case task.OutcomeSuccess:
			passed = true
		}
	}

	switch {
	case failed:
		r.Outcome = task.OutcomeFailure
	case passed:
		r.Outcome = task.OutcomeSuccess
	default:
		r.Outcome = task.OutcomeSkipped
	}
}

// counts tallies outcomes for the closing log line.
func (r *Result) counts() (passed, failed, skipped int) {
	for _, co := range r.Outcomes {
		switch co.Outcome {
		case task.OutcomeSuccess:
			passed++
		case task.OutcomeSkipped:
			skipped++
		default:
			failed++
		}
	}
	return passed, failed, skipped
}
