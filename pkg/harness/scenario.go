package harness

import (
	"github.com/vltest/vltest/pkg/config"
)

// Scenario identifies one compiler invocation mode. Cases declare the
// scenario tags they run under; the scenario contributes the leading flags of
// every compile in that mode.
type Scenario struct {
	// Tag is the canonical identifier for this scenario.
	Tag string

	// Description is a human-readable summary of the mode.
	Description string

	// Flags are the scenario's compiler flags, inserted before all others.
	Flags []string
}

// AllScenarios enumerates the scenarios known to the system. The environment
// configuration can override their flags, or declare entirely new tags.
var AllScenarios = []Scenario{
	{
		Tag:         "vlt",
		Description: "single-threaded translation to C++",
		Flags:       []string{"--cc"},
	},
	{
		Tag:         "vltmt",
		Description: "multi-threaded translation to C++",
		Flags:       []string{"--cc", "--threads", "2"},
	},
	{
		Tag:         "lint",
		Description: "lint-only pass, no code generation",
		Flags:       []string{"--lint-only"},
	},
}

// ScenarioByTag returns the built-in scenario with the given tag.
func ScenarioByTag(tag string) (Scenario, bool) {
	for _, s := range AllScenarios {
		if s.Tag == tag {
			return s, true
		}
	}
	return Scenario{}, false
}

// ScenarioTags returns the tags of all built-in scenarios.
func ScenarioTags() []string {
	tags := make([]string, 0, len(AllScenarios))
	for _, s := range AllScenarios {
		tags = append(tags, s.Tag)
	}
	return tags
}

// ResolveScenario returns the scenario for tag, applying any overrides from
// the environment configuration. Tags absent from the built-in set can be
// declared wholesale in the configuration.
func ResolveScenario(tag string, overrides map[string]config.ScenarioConfig) (Scenario, bool) {
	s, ok := ScenarioByTag(tag)
	if !ok {
		o, declared := overrides[tag]
		if !declared {
			return Scenario{}, false
		}
		return Scenario{Tag: tag, Description: o.Description, Flags: o.Flags}, true
	}

	if o, found := overrides[tag]; found {
		if len(o.Flags) > 0 {
			s.Flags = o.Flags
		}
		if o.Description != "" {
			s.Description = o.Description
		}
	}

	return s, true
}
