// Package data bridges tasks and runner results without introducing a cyclic
// dependency between those packages. Task results round-trip through JSON
// storage and come back as generic maps; the helpers here recover the typed
// views.
package data

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/runner"
	"github.com/vltest/vltest/pkg/task"
)

// Decode maps a generic value onto out, honoring the json struct tags the
// value was serialized with. Durations stored in their string form are parsed
// back.
func Decode(input interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: decodeDurationHook,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// decodeDurationHook parses strings like "250ms" into config.Duration, which
// marshals to text rather than nanoseconds.
func decodeDurationHook(from reflect.Type, to reflect.Type, v interface{}) (interface{}, error) {
	if to != reflect.TypeOf(config.Duration{}) || from.Kind() != reflect.String {
		return v, nil
	}
	d, err := time.ParseDuration(v.(string))
	if err != nil {
		return nil, err
	}
	return config.Duration{Duration: d}, nil
}

// DecodeRunnerResult coerces a task result into a runner.Result. Unknown
// shapes decode to an empty result with an unknown outcome.
func DecodeRunnerResult(result interface{}) *runner.Result {
	r := &runner.Result{}
	if err := Decode(result, r); err != nil {
		logging.S().Errorw("error while decoding runner result", "err", err)
	}
	if r.Outcome == "" {
		r.Outcome = task.OutcomeUnknown
	}
	return r
}

// DecodeTaskOutcome determines the overall outcome of a task. Canceled tasks
// are canceled regardless of any partial result; tasks that errored are
// failures; build tasks that archived cleanly are successes; run tasks report
// their aggregated result.
func DecodeTaskOutcome(tsk *task.Task) (task.Outcome, error) {
	if tsk.IsCanceled() {
		return task.OutcomeCanceled, nil
	}
	if tsk.Error != "" {
		return task.OutcomeFailure, nil
	}

	switch tsk.Type {
	case task.TypeBuild:
		return task.OutcomeSuccess, nil
	case task.TypeRun:
		if tsk.Result == nil {
			return task.OutcomeSuccess, nil
		}
		return DecodeRunnerResult(tsk.Result).Outcome, nil
	default:
		return task.OutcomeUnknown, fmt.Errorf("unknown task type: %s", tsk.Type)
	}
}

// IsTaskOutcomeInError reports whether the outcome should map to a non-zero
// exit code.
func IsTaskOutcomeInError(outcome task.Outcome) bool {
	return outcome == task.OutcomeFailure || outcome == task.OutcomeCanceled
}
