package cmd

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
)

// LogsCommand is the specification of the `logs` command.
var LogsCommand = cli.Command{
	Name:   "logs",
	Usage:  "retrieve the output log of a task",
	Action: logsCommand,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "task",
			Aliases:  []string{"t"},
			Usage:    "the task id",
			Required: true,
		},
		&cli.BoolFlag{
			Name:    "follow",
			Aliases: []string{"f"},
			Usage:   "stream the log until the task completes",
		},
	},
}

func logsCommand(c *cli.Context) error {
	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	cl, _, err := setupClient(c)
	if err != nil {
		return err
	}

	r, err := cl.Logs(ctx, &api.LogsRequest{
		TaskID: c.String("task"),
		Follow: c.Bool("follow"),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	tsk, err := client.ParseLogsResponse(os.Stdout, r)
	if err != nil {
		return err
	}

	printTask(tsk)
	return nil
}
