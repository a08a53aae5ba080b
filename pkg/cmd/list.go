package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/client"
)

// ListCommand is the specification of the `list` command. It asks the daemon
// to enumerate the suites and cases imported on its side; `suite list` is
// its client-local counterpart.
var ListCommand = cli.Command{
	Name:   "list",
	Usage:  "list all suites and test cases known to the daemon",
	Action: listCommand,
}

func listCommand(c *cli.Context) error {
	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	cl, _, err := setupClient(c)
	if err != nil {
		return err
	}

	r, err := cl.List(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	return client.ParseListResponse(r)
}
