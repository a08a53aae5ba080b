package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/vltest/vltest/pkg/logging"
)

const (
	EnvVltestHomeDir = "VLTEST_HOME"

	DefaultListenAddr = "localhost:8060"

	DefaultCompilerBin = "verilator"
	DefaultMakeBin     = "make"

	DefaultDaemonWorkers   = 2
	DefaultDaemonQueueSize = 100
)

func (e *EnvConfig) Load() error {
	// apply fallbacks.
	e.Daemon.Listen = DefaultListenAddr
	e.Daemon.Workers = DefaultDaemonWorkers
	e.Daemon.QueueSize = DefaultDaemonQueueSize
	e.Client.Endpoint = DefaultListenAddr
	e.Compiler.Bin = DefaultCompilerBin
	e.Compiler.MakeBin = DefaultMakeBin

	// calculate home directory; use env var, or fall back to $HOME/vltest
	// otherwise.
	var home string
	if v, ok := os.LookupEnv(EnvVltestHomeDir); ok {
		// we have an env var.
		home = v
	} else {
		// fallback to $HOME/vltest.
		v, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to obtain user home dir: %w", err)
		}
		home = filepath.Join(v, "vltest")
	}

	switch fi, err := os.Stat(home); {
	case os.IsNotExist(err):
		logging.S().Infof("creating home directory at %s", home)
		if err := os.MkdirAll(home, 0777); err != nil {
			return fmt.Errorf("failed to create home directory at %s: %w", home, err)
		}
	case err == nil:
		logging.S().Debugf("using home directory: %s", home)
	case !fi.IsDir():
		return fmt.Errorf("home path is not a directory %s", home)
	}

	// ensure home and children directories exist.
	e.dirs = Directories{home}
	for _, d := range []string{
		e.dirs.Home(),
		e.dirs.Suites(),
		e.dirs.Work(),
		e.dirs.Outputs(),
		e.dirs.Daemon(),
	} {
		if err := ensureDir(d); err != nil {
			return fmt.Errorf("failed to check/create directory %s: %w", d, err)
		}
	}

	// parse the .env.toml file, if it exists.
	f := filepath.Join(e.dirs.Home(), ".env.toml")
	if _, err := os.Stat(f); err == nil {
		// try to load the optional .env.toml file
		_, err = toml.DecodeFile(f, e)
		if err != nil {
			return fmt.Errorf("found .env.toml at %s, but failed to parse: %w", f, err)
		}
		logging.S().Debugf(".env.toml loaded from: %s", f)
	} else {
		logging.S().Debugf("no .env.toml found at %s; running with defaults", f)
	}
	return nil
}

// ensureDir checks whether the specified path is a directory, and if not it
// attempts to create it.
func ensureDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		// We need to create the directory.
		return os.MkdirAll(path, os.ModePerm)
	}

	if !fi.IsDir() {
		return fmt.Errorf("path %s exists, and it is not a directory", path)
	}
	return nil
}
