package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/config"
)

// DescribeCommand is the specification of the `describe` command.
var DescribeCommand = cli.Command{
	Name:        "describe",
	Usage:       "describe a test suite",
	ArgsUsage:   "<suite name>",
	Description: "This command loads the suite manifest from $VLTEST_HOME/suites/<suite name>, and explains its contents.",
	Action:      describeCommand,
}

func describeCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("missing suite name")
	}

	cfg := &config.EnvConfig{}
	if err := cfg.Load(); err != nil {
		return err
	}

	_, manifest, err := resolveSuite(cfg, c.Args().First())
	if err != nil {
		return err
	}

	manifest.Describe(os.Stdout)
	fmt.Print("TEST CASES:\n----------\n\n")

	for _, tc := range manifest.Cases {
		tc.Describe(os.Stdout)
	}

	return nil
}
