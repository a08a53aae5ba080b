package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
)

// StatusCommand is the specification of the `status` command.
var StatusCommand = cli.Command{
	Name:      "status",
	Usage:     "get the current status of a task",
	Action:    statusCommand,
	ArgsUsage: "[task_id]",
}

func statusCommand(c *cli.Context) error {
	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	if c.NArg() != 1 {
		return errors.New("missing task id")
	}

	cl, _, err := setupClient(c)
	if err != nil {
		return err
	}

	r, err := cl.Logs(ctx, &api.LogsRequest{TaskID: c.Args().First()})
	if err != nil {
		return err
	}
	defer r.Close()

	tsk, err := client.ParseStatusResponse(r)
	if err != nil {
		return err
	}

	printTask(tsk)
	return nil
}
