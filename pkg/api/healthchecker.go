package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/logrusorgru/aurora"

	"github.com/vltest/vltest/pkg/rpc"
)

// Healthchecker is the interface to be implemented by a runner that supports
// healthchecks and repairs.
type Healthchecker interface {
	Healthcheck(ctx context.Context, engine Engine, ow *rpc.OutputWriter, fix bool) (*HealthcheckReport, error)
}

// HealthcheckStatus is an enum that represents the outcome of a single check
// or fix.
type HealthcheckStatus string

var (
	// HealthcheckStatusOK indicates success in a healthcheck or a repair.
	HealthcheckStatusOK = HealthcheckStatus("ok")
	// HealthcheckStatusFailed indicates the outcome of a healthcheck or an
	// attempted fix was negative.
	HealthcheckStatusFailed = HealthcheckStatus("failed")
	// HealthcheckStatusAborted indicates an internal error during the
	// execution of a healthcheck or a fix.
	HealthcheckStatusAborted = HealthcheckStatus("aborted")
	// HealthcheckStatusOmitted indicates that a healthcheck or a fix was not
	// carried out due to previous errors.
	HealthcheckStatusOmitted = HealthcheckStatus("omitted")
)

// HealthcheckItem represents an entry in a HealthcheckReport. It is used to
// convey the result of checks and fixes.
type HealthcheckItem struct {
	// Name is a short name describing this item.
	Name string `json:"name"`
	// Status is the status of this check/fix.
	Status HealthcheckStatus `json:"status"`
	// Message optionally contains any human-readable messages to be presented
	// to the user.
	Message string `json:"message"`
}

type HealthcheckReport struct {
	// Checks enumerates the outcomes of the health checks.
	Checks []HealthcheckItem `json:"checks"`

	// Fixes enumerates the outcomes of the fixes applied during repair, if a
	// repair was requested.
	Fixes []HealthcheckItem `json:"fixes"`
}

// ChecksSucceeded reports whether every check came back ok.
func (hr *HealthcheckReport) ChecksSucceeded() bool {
	for _, c := range hr.Checks {
		if c.Status != HealthcheckStatusOK {
			return false
		}
	}
	return true
}

// FixesSucceeded reports whether every attempted fix came back ok. Omitted
// fixes don't count against success: they were never tried.
func (hr *HealthcheckReport) FixesSucceeded() bool {
	for _, f := range hr.Fixes {
		if f.Status != HealthcheckStatusOK && f.Status != HealthcheckStatusOmitted {
			return false
		}
	}
	return true
}

func (hr *HealthcheckReport) String() string {
	var sb strings.Builder

	if len(hr.Checks) > 0 {
		sb.WriteString("Checks:\n")
		for _, c := range hr.Checks {
			writeItem(&sb, c)
		}
	}

	if len(hr.Fixes) > 0 {
		sb.WriteString("Fixes:\n")
		for _, f := range hr.Fixes {
			writeItem(&sb, f)
		}
	}

	return sb.String()
}

func writeItem(sb *strings.Builder, item HealthcheckItem) {
	var status aurora.Value
	switch item.Status {
	case HealthcheckStatusOK:
		status = aurora.Green(string(item.Status))
	case HealthcheckStatusFailed:
		status = aurora.Red(string(item.Status))
	case HealthcheckStatusAborted:
		status = aurora.Red(string(item.Status))
	default:
		status = aurora.Gray(7, string(item.Status))
	}

	fmt.Fprintf(sb, "- %s; %s; %s\n", item.Name, aurora.Bold(status), item.Message)
}
