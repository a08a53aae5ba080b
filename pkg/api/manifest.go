package api

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"
	"github.com/mitchellh/go-wordwrap"

	"github.com/vltest/vltest/pkg/config"
)

// ManifestFilename is the name of the manifest file at the root of every
// suite directory.
const ManifestFilename = "manifest.toml"

// TestSuiteManifest represents a test suite known by the system. It is the
// parsed form of the manifest.toml at the root of a suite directory.
type TestSuiteManifest struct {
	// Name is the canonical name of the suite.
	Name string `toml:"name" json:"name" validate:"required"`

	// Defaults supplies values for case fields left unset in the manifest.
	Defaults CaseDefaults `toml:"defaults" json:"defaults"`

	// Runners carries runner-specific configuration overrides for this suite.
	Runners map[string]config.ConfigMap `toml:"runners" json:"runners"`

	// Cases enumerates the test cases in this suite.
	Cases []*TestCase `toml:"testcases" json:"testcases" validate:"required,gt=0"`
}

// CaseDefaults holds suite-wide case defaults. Scenarios and Timeout fill
// unset case fields; CompileFlags are not merged into cases, they are
// prepended to every compiler invocation before the case's own flags.
type CaseDefaults struct {
	Scenarios    []string        `toml:"scenarios" json:"scenarios"`
	CompileFlags []string        `toml:"compile_flags" json:"compile_flags" mapstructure:"compile_flags"`
	Timeout      config.Duration `toml:"timeout" json:"timeout"`
}

// LoadManifest parses and validates the manifest in the given suite
// directory.
func LoadManifest(dir string) (*TestSuiteManifest, error) {
	path := filepath.Join(dir, ManifestFilename)

	var m TestSuiteManifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("failed to parse suite manifest at %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite manifest at %s: %w", path, err)
	}

	return &m, nil
}

// TestCaseByName returns a test case by name.
func (m *TestSuiteManifest) TestCaseByName(name string) (idx int, tc *TestCase, ok bool) {
	for idx, tc = range m.Cases {
		if tc.Name == name {
			return idx, tc, true
		}
	}
	return -1, nil, false
}

// FilterCases resolves the given case names against the manifest, in manifest
// order. An empty names slice selects every case in the suite.
func (m *TestSuiteManifest) FilterCases(names []string) ([]*TestCase, error) {
	if len(names) == 0 {
		return m.Cases, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	res := make([]*TestCase, 0, len(names))
	for _, tc := range m.Cases {
		if want[tc.Name] {
			res = append(res, tc)
			delete(want, tc.Name)
		}
	}

	for n := range want {
		return nil, fmt.Errorf("test case %s not found in suite %s", n, m.Name)
	}

	return res, nil
}

// PrepareCase returns a copy of the named case with suite defaults applied,
// for those fields that are not explicitly set in the case itself.
func (m *TestSuiteManifest) PrepareCase(name string) (*TestCase, error) {
	_, tc, ok := m.TestCaseByName(name)
	if !ok {
		return nil, fmt.Errorf("test case %s not found in suite %s", name, m.Name)
	}

	prepared := *tc
	def := TestCase{
		Scenarios: m.Defaults.Scenarios,
		Timeout:   m.Defaults.Timeout,
	}
	if err := mergo.Merge(&prepared, def); err != nil {
		return nil, fmt.Errorf("error applying suite defaults to case %s: %w", name, err)
	}

	return &prepared, nil
}

func (m *TestSuiteManifest) HasRunner(name string) bool {
	for k := range m.Runners {
		if k == name {
			return true
		}
	}
	return false
}

func (m *TestSuiteManifest) SupportedRunners() []string {
	xs := make([]string, 0, len(m.Runners))
	for x := range m.Runners {
		xs = append(xs, x)
	}
	return xs
}

func (m *TestSuiteManifest) Describe(w io.Writer) {
	p := func(w io.Writer, f string, a ...interface{}) {
		s := wordwrap.WrapString(fmt.Sprintf(f, a...), 120)
		_, _ = fmt.Fprintln(w, s)
		_, _ = fmt.Fprintln(w)
	}

	p(w, "This test suite is called %q.", m.Name)

	if len(m.Defaults.Scenarios) > 0 {
		p(w, "Its cases run under scenarios %v unless they say otherwise.", m.Defaults.Scenarios)
	}

	if len(m.Defaults.CompileFlags) > 0 {
		p(w, "Every compile in this suite carries the flags %v.", m.Defaults.CompileFlags)
	}

	p(w, "It has %d test cases.", len(m.Cases))
}

// WriteManifestToFile encodes the manifest as TOML into the given file.
func WriteManifestToFile(m *TestSuiteManifest, file string) (err error) {
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("failed to write suite manifest to file: %w", err)
	}

	defer func() {
		cerr := f.Close()
		if err == nil {
			err = cerr
		}
	}()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode suite manifest into file: %w", err)
	}
	return nil
}
