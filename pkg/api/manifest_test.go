package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vltest/vltest/pkg/config"
)

func TestManifestHasRunner(t *testing.T) {
	m := TestSuiteManifest{
		Name: "suite001",
		Runners: map[string]config.ConfigMap{
			"local:exec": {},
		},
		Cases: []*TestCase{{Name: "a", Top: "t/a.v"}},
	}

	require.True(t, m.HasRunner("local:exec"))
	require.False(t, m.HasRunner("local:docker"))
	require.False(t, m.HasRunner("anything"))
}

func TestValidateCaseNamesUnique(t *testing.T) {
	m := TestSuiteManifest{
		Name: "suite001",
		Cases: []*TestCase{
			{Name: "repeated", Top: "t/a.v"},
			{Name: "repeated", Top: "t/b.v"},
		},
	}

	require.Error(t, m.Validate())
}

func TestValidateTopPathConfined(t *testing.T) {
	for _, top := range []string{"/etc/passwd", "../outside.v", "t/../../outside.v"} {
		m := TestSuiteManifest{
			Name:  "suite001",
			Cases: []*TestCase{{Name: "escape", Top: top}},
		}
		require.Error(t, m.Validate(), "top %q should be rejected", top)
	}

	m := TestSuiteManifest{
		Name:  "suite001",
		Cases: []*TestCase{{Name: "ok", Top: "t/ok.v"}},
	}
	require.NoError(t, m.Validate())
}

func TestPrepareCaseAppliesDefaults(t *testing.T) {
	m := TestSuiteManifest{
		Name: "suite001",
		Defaults: CaseDefaults{
			Scenarios:    []string{"vlt"},
			CompileFlags: []string{"-Wall"},
			Timeout:      config.Duration{Duration: 90 * time.Second},
		},
		Cases: []*TestCase{
			{Name: "inherits", Top: "t/a.v"},
			{
				Name:      "overrides",
				Top:       "t/b.v",
				Scenarios: []string{"lint"},
				Timeout:   config.Duration{Duration: 5 * time.Second},
			},
		},
	}

	tc, err := m.PrepareCase("inherits")
	require.NoError(t, err)
	require.Equal(t, []string{"vlt"}, tc.Scenarios)
	require.Equal(t, 90*time.Second, tc.Timeout.Duration)

	// defaults never touch the case's own compile flags.
	require.Empty(t, tc.CompileFlags)

	tc, err = m.PrepareCase("overrides")
	require.NoError(t, err)
	require.Equal(t, []string{"lint"}, tc.Scenarios)
	require.Equal(t, 5*time.Second, tc.Timeout.Duration)

	// the original case in the manifest is left untouched.
	require.Empty(t, m.Cases[0].Scenarios)
}

func TestFilterCases(t *testing.T) {
	m := TestSuiteManifest{
		Name: "suite001",
		Cases: []*TestCase{
			{Name: "a", Top: "t/a.v"},
			{Name: "b", Top: "t/b.v"},
			{Name: "c", Top: "t/c.v"},
		},
	}

	all, err := m.FilterCases(nil)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// selection preserves manifest order, not request order.
	some, err := m.FilterCases([]string{"c", "a"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	require.Equal(t, "a", some[0].Name)
	require.Equal(t, "c", some[1].Name)

	_, err = m.FilterCases([]string{"nope"})
	require.Error(t, err)
}

func TestLoadManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	manifest := `
name = "verilator"

[defaults]
scenarios = ["vlt"]
timeout = "120s"

[[testcases]]
name = "flag-quiet-stats"
top = "t/t_flag_quiet_stats.v"
scenarios = ["vlt"]
compile_flags = ["--quiet", "--no-quiet-stats"]
native_build = false
expect_log = ['V e r i l a t']
`
	err := os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(manifest), 0644)
	require.NoError(t, err)

	m, err := LoadManifest(dir)
	require.NoError(t, err)
	require.Equal(t, "verilator", m.Name)
	require.Len(t, m.Cases, 1)

	tc := m.Cases[0]
	require.Equal(t, "flag-quiet-stats", tc.Name)
	require.Equal(t, "t/t_flag_quiet_stats.v", tc.Top)

	// flag order and separation must survive parsing untouched.
	require.Equal(t, []string{"--quiet", "--no-quiet-stats"}, tc.CompileFlags)
	require.False(t, tc.NativeBuild)
	require.Equal(t, []string{`V e r i l a t`}, tc.ExpectLog)
	require.Equal(t, 120*time.Second, m.Defaults.Timeout.Duration)
}

func TestLoadManifestMissing(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	require.Error(t, err)
}

func TestTopBase(t *testing.T) {
	tc := TestCase{Name: "x", Top: "t/t_flag_quiet_stats.v"}
	require.Equal(t, "t_flag_quiet_stats", tc.TopBase())
}

func TestSupportsScenario(t *testing.T) {
	tc := TestCase{Name: "x", Top: "t/x.v", Scenarios: []string{"vlt", "lint"}}
	require.True(t, tc.SupportsScenario("vlt"))
	require.True(t, tc.SupportsScenario("lint"))
	require.False(t, tc.SupportsScenario("vltmt"))
}
