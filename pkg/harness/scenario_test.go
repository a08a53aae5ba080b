package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vltest/vltest/pkg/config"
)

func TestScenarioByTag(t *testing.T) {
	s, ok := ScenarioByTag("vlt")
	require.True(t, ok)
	assert.Equal(t, []string{"--cc"}, s.Flags)

	_, ok = ScenarioByTag("nope")
	assert.False(t, ok)
}

func TestResolveScenarioOverrides(t *testing.T) {
	overrides := map[string]config.ScenarioConfig{
		"vltmt": {Flags: []string{"--cc", "--threads", "8"}},
	}

	s, ok := ResolveScenario("vltmt", overrides)
	require.True(t, ok)
	assert.Equal(t, []string{"--cc", "--threads", "8"}, s.Flags)

	// untouched scenarios keep their built-in flags.
	s, ok = ResolveScenario("vlt", overrides)
	require.True(t, ok)
	assert.Equal(t, []string{"--cc"}, s.Flags)
}

func TestResolveScenarioDeclaresNewTag(t *testing.T) {
	overrides := map[string]config.ScenarioConfig{
		"xsim": {Flags: []string{"--xsim"}, Description: "translate for the xsim simulator"},
	}

	s, ok := ResolveScenario("xsim", overrides)
	require.True(t, ok)
	assert.Equal(t, "xsim", s.Tag)
	assert.Equal(t, []string{"--xsim"}, s.Flags)

	_, ok = ResolveScenario("unknown", overrides)
	assert.False(t, ok)
}
