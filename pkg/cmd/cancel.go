package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
	"github.com/vltest/vltest/pkg/logging"
)

// CancelCommand is the specification of the `cancel` command.
var CancelCommand = cli.Command{
	Name:      "cancel",
	Usage:     "cancel a pending or running task",
	Action:    cancelCommand,
	ArgsUsage: "[task_id]",
}

func cancelCommand(c *cli.Context) error {
	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	if c.NArg() != 1 {
		return errors.New("missing task id")
	}

	id := c.Args().First()

	cl, _, err := setupClient(c)
	if err != nil {
		return err
	}

	resp, err := cl.Kill(ctx, &api.KillRequest{TaskID: id})
	if err != nil {
		return err
	}
	defer resp.Close()

	if err := client.ParseKillResponse(resp); err != nil {
		return err
	}

	logging.S().Infow("task canceled", "task_id", id)
	return nil
}
