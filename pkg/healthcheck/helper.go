package healthcheck

import (
	"context"

	"github.com/vltest/vltest/pkg/api"
)

// Checker is a function that checks whether a precondition is met. It returns
// whether the check succeeded, an optional message to present to the user,
// and an error in case the check logic itself failed.
//
//	(true, *, nil)      => HealthcheckStatusOK
//	(false, *, nil)     => HealthcheckStatusFailed
//	(false, *, not-nil) => HealthcheckStatusAborted
//	checker doesn't run => HealthcheckStatusOmitted
type Checker func() (ok bool, msg string, err error)

// Fixer is a function that will be called to attempt to fix a failing check.
// It returns an optional message to present to the user, and an error in case
// the fix failed.
type Fixer func() (msg string, err error)

type item struct {
	Name    string
	Checker Checker
	Fixer   Fixer
}

// Helper runs a runner's preconditions. Individual checks are registered with
// Enlist(), then executed in order by RunChecks(), optionally attempting
// fixes for the ones that fail. Checkers and fixers are typically closures
// over the runner's environment.
type Helper struct {
	items  []*item
	report api.HealthcheckReport
}

// Enlist registers a named check. The fixer may be nil when no programmatic
// repair exists; its fix is then reported as omitted.
func (hh *Helper) Enlist(name string, c Checker, f Fixer) {
	hh.items = append(hh.items, &item{name, c, f})
}

// Report returns the outcome of the last RunChecks call.
func (hh *Helper) Report() *api.HealthcheckReport {
	return &hh.report
}

// RunChecks runs each check sequentially, in the order they were enlisted.
// With fix set, every failing check's fixer is attempted; the fixes of
// passing, aborted or fixerless checks are reported as omitted.
func (hh *Helper) RunChecks(ctx context.Context, fix bool) error {
	hh.report = api.HealthcheckReport{}

	for _, li := range hh.items {
		if err := ctx.Err(); err != nil {
			return err
		}

		check := api.HealthcheckItem{Name: li.Name}
		omitted := api.HealthcheckItem{Name: li.Name, Status: api.HealthcheckStatusOmitted}

		ok, msg, err := li.Checker()
		check.Message = msg

		switch {
		case err != nil:
			check.Status = api.HealthcheckStatusAborted
			hh.report.Checks = append(hh.report.Checks, check)

			if fix {
				hh.report.Fixes = append(hh.report.Fixes, omitted)
			}

		case ok:
			check.Status = api.HealthcheckStatusOK
			hh.report.Checks = append(hh.report.Checks, check)

			if fix {
				hh.report.Fixes = append(hh.report.Fixes, omitted)
			}

		default:
			check.Status = api.HealthcheckStatusFailed
			hh.report.Checks = append(hh.report.Checks, check)

			if !fix {
				continue
			}

			if li.Fixer == nil {
				hh.report.Fixes = append(hh.report.Fixes, omitted)
				continue
			}

			f := api.HealthcheckItem{Name: li.Name}
			f.Message, err = li.Fixer()
			if err != nil {
				f.Status = api.HealthcheckStatusFailed
			} else {
				f.Status = api.HealthcheckStatusOK
			}

			hh.report.Fixes = append(hh.report.Fixes, f)
		}
	}

	return nil
}
