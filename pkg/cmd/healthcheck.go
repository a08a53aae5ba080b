package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
)

// HealthcheckCommand is the specification of the `healthcheck` command.
var HealthcheckCommand = cli.Command{
	Name:   "healthcheck",
	Usage:  "check the preconditions of a runner, and optionally repair them",
	Action: healthcheckCommand,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "runner",
			Aliases:  []string{"r"},
			Usage:    "runner to healthcheck; values include: 'local:exec'",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "fix",
			Usage: "attempt to repair any failed checks",
		},
	},
}

func healthcheckCommand(c *cli.Context) error {
	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	cl, _, err := setupClient(c)
	if err != nil {
		return err
	}

	r, err := cl.Healthcheck(ctx, &api.HealthcheckRequest{
		Runner: c.String("runner"),
		Fix:    c.Bool("fix"),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	resp, err := client.ParseHealthcheckResponse(r)
	if err != nil {
		return err
	}

	fmt.Println(resp.String())

	switch {
	case !resp.ChecksSucceeded() && !c.Bool("fix"):
		return cli.Exit("some checks failed; re-run with --fix to attempt a repair", 1)
	case c.Bool("fix") && !resp.FixesSucceeded():
		return cli.Exit("some fixes failed", 1)
	}

	return nil
}
