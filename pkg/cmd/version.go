package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/version"
)

// VersionCommand is the specification of the `version` command.
var VersionCommand = cli.Command{
	Name:   "version",
	Usage:  "print the version of this build",
	Action: versionCommand,
}

func versionCommand(c *cli.Context) error {
	commit := version.GitCommit
	if len(commit) >= 8 {
		commit = commit[:8]
	}
	if commit == "" {
		commit = "dirty"
	}
	fmt.Printf("vltest commit %s\n", commit)
	return nil
}
