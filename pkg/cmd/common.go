package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/conv"
	"github.com/vltest/vltest/pkg/data"
	"github.com/vltest/vltest/pkg/task"
)

func setupClient(c *cli.Context) (*client.Client, *config.EnvConfig, error) {
	cfg := &config.EnvConfig{}
	if err := cfg.Load(); err != nil {
		return nil, nil, err
	}

	if endpoint := c.String("endpoint"); endpoint != "" {
		cfg.Client.Endpoint = endpoint
	}

	cl := client.New(cfg)
	return cl, cfg, nil
}

// resolveSuite resolves an imported test suite by name, returning its root
// directory and its parsed manifest.
func resolveSuite(cfg *config.EnvConfig, name string) (string, *api.TestSuiteManifest, error) {
	dir := filepath.Join(cfg.Dirs().Suites(), filepath.FromSlash(name))
	if !isDirectory(dir) {
		return "", nil, fmt.Errorf("failed to locate suite in directory: %s", dir)
	}

	manifest, err := api.LoadManifest(dir)
	if err != nil {
		return "", nil, err
	}

	return dir, manifest, nil
}

// parseRunnerConfig converts --run-cfg KEY=VAL overrides into a typed map
// suitable for config coalescing.
func parseRunnerConfig(c *cli.Context) (map[string]interface{}, error) {
	kvs, err := conv.ParseKeyValues(c.StringSlice("run-cfg"))
	if err != nil {
		return nil, fmt.Errorf("failed while parsing runner config: %w", err)
	}
	return conv.InferTypedMap(kvs), nil
}

// printTask renders one task record to stdout.
func printTask(tsk task.Task) {
	outcome, err := data.DecodeTaskOutcome(&tsk)
	if err != nil {
		outcome = task.OutcomeUnknown
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", tsk.ID)
	fmt.Fprintf(tw, "Type:\t%s\n", tsk.Type)
	fmt.Fprintf(tw, "Suite:\t%s\n", tsk.Suite)
	fmt.Fprintf(tw, "Scenario:\t%s\n", tsk.Scenario)
	fmt.Fprintf(tw, "Runner:\t%s\n", tsk.Runner)
	fmt.Fprintf(tw, "State:\t%s\n", tsk.State().State)
	fmt.Fprintf(tw, "Outcome:\t%s\n", outcome)
	fmt.Fprintf(tw, "Created:\t%s\n", humanize.Time(tsk.Created()))
	fmt.Fprintf(tw, "Took:\t%s\n", tsk.Took().Truncate(time.Millisecond))
	if tsk.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", tsk.Error)
	}
	tw.Flush()
}

func isDirectory(path string) bool {
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		return false
	}
	return true
}
