package api

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/vltest/vltest/pkg/config"
)

// TestCase declares a single regression test: the design to compile, the
// scenarios it can run under, and the assertions to evaluate against the
// compile log.
type TestCase struct {
	// Name is the name of this case, unique within its suite.
	Name string `toml:"name" json:"name" validate:"required"`

	// Top is the path to the top-level source file, relative to the suite
	// directory.
	Top string `toml:"top" json:"top" validate:"required"`

	// Scenarios enumerates the scenario tags this case supports. Running the
	// case under any other scenario skips it.
	Scenarios []string `toml:"scenarios" json:"scenarios"`

	// CompileFlags are extra flags for the compiler invocation. They are
	// appended after the scenario and suite-default flags, as separate
	// arguments, in exactly the order written here.
	CompileFlags []string `toml:"compile_flags" json:"compile_flags" mapstructure:"compile_flags"`

	// NativeBuild, when true, runs the compiler-emitted makefile after a
	// successful compile.
	NativeBuild bool `toml:"native_build" json:"native_build" mapstructure:"native_build"`

	// ExpectLog holds regular expressions that must each match somewhere in
	// the compile log for the case to pass.
	ExpectLog []string `toml:"expect_log" json:"expect_log" mapstructure:"expect_log"`

	// RejectLog holds regular expressions that must not match anywhere in the
	// compile log.
	RejectLog []string `toml:"reject_log" json:"reject_log" mapstructure:"reject_log"`

	// ExpectCompileFail inverts the compile step: the compiler must exit
	// non-zero for the case to proceed to its assertions.
	ExpectCompileFail bool `toml:"expect_compile_fail" json:"expect_compile_fail" mapstructure:"expect_compile_fail"`

	// Timeout bounds the evaluation of this case. Zero falls back to the
	// suite default, and failing that, the compiler timeout from the
	// environment configuration.
	Timeout config.Duration `toml:"timeout" json:"timeout"`
}

// SupportsScenario reports whether tag is in the case's scenario list.
func (tc *TestCase) SupportsScenario(tag string) bool {
	for _, s := range tc.Scenarios {
		if s == tag {
			return true
		}
	}
	return false
}

// TopBase returns the basename of the top source file with its extension
// stripped. The compiler derives its output names from it.
func (tc *TestCase) TopBase() string {
	base := filepath.Base(tc.Top)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (tc *TestCase) Describe(w io.Writer) {
	_, _ = fmt.Fprintf(w, "- Test case: %s\n", tc.Name)
	_, _ = fmt.Fprintf(w, "  Top: %s\n", tc.Top)
	_, _ = fmt.Fprintf(w, "  Scenarios: %s\n", strings.Join(tc.Scenarios, ", "))

	tw := tabwriter.NewWriter(w, 1, 0, 1, ' ', tabwriter.Debug)
	if len(tc.CompileFlags) > 0 {
		_, _ = fmt.Fprintf(tw, "    compile flags\t %s\n", strings.Join(tc.CompileFlags, " "))
	}
	_, _ = fmt.Fprintf(tw, "    native build\t %v\n", tc.NativeBuild)
	for _, p := range tc.ExpectLog {
		_, _ = fmt.Fprintf(tw, "    expect\t %s\n", p)
	}
	for _, p := range tc.RejectLog {
		_, _ = fmt.Fprintf(tw, "    reject\t %s\n", p)
	}
	if tc.ExpectCompileFail {
		_, _ = fmt.Fprintf(tw, "    expect compile fail\t true\n")
	}
	tw.Flush()

	fmt.Fprintln(w)
}
