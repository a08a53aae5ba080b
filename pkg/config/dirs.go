package config

import "path/filepath"

// Directories resolves the well-known subdirectories of the vltest home.
type Directories struct {
	home string
}

func (d Directories) Home() string {
	return d.home
}

// Suites is where imported test suites live, one directory per suite, each
// with a manifest.toml at its root.
func (d Directories) Suites() string {
	return filepath.Join(d.home, "suites")
}

// Work is scratch space for runners.
func (d Directories) Work() string {
	return filepath.Join(d.home, "data", "work")
}

// Outputs holds the per-run output trees: outputs/<suite>/<run id>/<case>.
func (d Directories) Outputs() string {
	return filepath.Join(d.home, "data", "outputs")
}

// Daemon holds daemon state, including per-task output logs.
func (d Directories) Daemon() string {
	return filepath.Join(d.home, "daemon")
}
