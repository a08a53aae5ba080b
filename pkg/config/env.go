package config

type ConfigMap map[string]interface{}

// EnvConfig contains the environment configuration. It is populated by
// coalescing values from these sources, in descending order of precedence:
//
//  1. environment variables.
//  2. .env.toml.
//  3. default fallbacks.
type EnvConfig struct {
	dirs Directories

	Compiler  CompilerConfig            `toml:"compiler"`
	Runners   map[string]ConfigMap      `toml:"runners"`
	Scenarios map[string]ScenarioConfig `toml:"scenarios"`
	Daemon    DaemonConfig              `toml:"daemon"`
	Client    ClientConfig              `toml:"client"`
}

func (e EnvConfig) Dirs() Directories {
	return e.dirs
}

// CompilerConfig points vltest at the HDL compiler under test. The binary is
// resolved through PATH unless an absolute path is given.
type CompilerConfig struct {
	// Bin is the compiler executable, e.g. "verilator".
	Bin string `toml:"bin"`
	// MakeBin is the make executable used for native build steps.
	MakeBin string `toml:"make_bin"`
	// DefaultFlags are inserted on every invocation, after the scenario mode
	// flags and before any suite or case flags.
	DefaultFlags []string `toml:"default_flags"`
	// Timeout bounds a single compile or native build step, unless the test
	// case carries its own.
	Timeout Duration `toml:"timeout"`
}

// ScenarioConfig overrides or extends the built-in scenario registry.
type ScenarioConfig struct {
	Flags       []string `toml:"flags"`
	Description string   `toml:"description"`
}

type DaemonConfig struct {
	Listen           string `toml:"listen"`
	Workers          int    `toml:"workers"`
	QueueSize        int    `toml:"queue_size"`
	TasksInMemory    bool   `toml:"tasks_in_memory"`
	InfluxDBEndpoint string `toml:"influxdb_endpoint"`
}

type ClientConfig struct {
	Endpoint string `toml:"endpoint"`
	User     string `toml:"user"`
}
