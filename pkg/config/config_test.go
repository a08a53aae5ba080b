package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesHomeTree(t *testing.T) {
	home := filepath.Join(t.TempDir(), "vltest")
	os.Setenv(EnvVltestHomeDir, home)
	defer os.Unsetenv(EnvVltestHomeDir)

	cfg := &EnvConfig{}
	require.NoError(t, cfg.Load())

	for _, d := range []string{
		cfg.Dirs().Home(),
		cfg.Dirs().Suites(),
		cfg.Dirs().Work(),
		cfg.Dirs().Outputs(),
		cfg.Dirs().Daemon(),
	} {
		fi, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}

	// fallbacks applied.
	assert.Equal(t, DefaultListenAddr, cfg.Daemon.Listen)
	assert.Equal(t, DefaultCompilerBin, cfg.Compiler.Bin)
	assert.Equal(t, DefaultDaemonWorkers, cfg.Daemon.Workers)
}

func TestLoadParsesEnvToml(t *testing.T) {
	home := filepath.Join(t.TempDir(), "vltest")
	require.NoError(t, os.MkdirAll(home, 0777))

	envtoml := `
[compiler]
bin = "/opt/verilator/bin/verilator"
default_flags = ["-Wall"]
timeout = "90s"

[scenarios.vltmt]
flags = ["--cc", "--threads", "4"]

[daemon]
listen = "localhost:9999"

[runners."local:exec"]
parallelism = 4
`
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env.toml"), []byte(envtoml), 0644))

	os.Setenv(EnvVltestHomeDir, home)
	defer os.Unsetenv(EnvVltestHomeDir)

	cfg := &EnvConfig{}
	require.NoError(t, cfg.Load())

	assert.Equal(t, "/opt/verilator/bin/verilator", cfg.Compiler.Bin)
	assert.Equal(t, []string{"-Wall"}, cfg.Compiler.DefaultFlags)
	assert.Equal(t, 90*time.Second, cfg.Compiler.Timeout.Duration)
	assert.Equal(t, "localhost:9999", cfg.Daemon.Listen)
	assert.Equal(t, []string{"--cc", "--threads", "4"}, cfg.Scenarios["vltmt"].Flags)
	assert.EqualValues(t, 4, cfg.Runners["local:exec"]["parallelism"])
}

func TestCoalesceIntoType(t *testing.T) {
	type runnercfg struct {
		Parallelism int      `toml:"parallelism"`
		KeepGoing   bool     `toml:"keep_going"`
		CaseTimeout Duration `toml:"case_timeout"`
	}

	var c CoalescedConfig
	c = c.Append(map[string]interface{}{"parallelism": 2, "case_timeout": "30s"})
	c = c.Append(nil)
	c = c.Append(map[string]interface{}{"parallelism": 8, "keep_going": true})

	v, err := c.CoalesceIntoType(reflect.TypeOf(runnercfg{}))
	require.NoError(t, err)

	cfg := v.(*runnercfg)
	assert.Equal(t, 8, cfg.Parallelism, "later appends take precedence")
	assert.True(t, cfg.KeepGoing)
	assert.Equal(t, 30*time.Second, cfg.CaseTimeout.Duration)
}
