package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
	"github.com/vltest/vltest/pkg/logging"
)

// CollectCommand is the specification of the `collect` command.
var CollectCommand = cli.Command{
	Name:      "collect",
	Usage:     "collect the output tree of the supplied run into a .tgz archive",
	Action:    collectCommand,
	ArgsUsage: "[task_id]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "runner",
			Aliases: []string{"r"},
			Usage:   "runner that produced the outputs; values include: 'local:exec'",
			Value:   "local:exec",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write the output archive to `FILENAME`",
		},
	},
}

func collectCommand(c *cli.Context) error {
	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	if c.NArg() != 1 {
		return errors.New("missing task id")
	}

	var (
		id     = c.Args().First()
		runner = c.String("runner")
		output = id + ".tgz"
	)

	if o := c.String("output"); o != "" {
		output = o
	}

	cl, _, err := setupClient(c)
	if err != nil {
		return err
	}

	return collect(ctx, cl, runner, id, output)
}

func collect(ctx context.Context, cl *client.Client, runner string, runid string, outputFile string) error {
	resp, err := cl.CollectOutputs(ctx, &api.OutputsRequest{
		Runner: runner,
		RunID:  runid,
	})
	if err != nil {
		if err == context.Canceled {
			return fmt.Errorf("interrupted")
		}
		return err
	}
	defer resp.Close()

	file, err := os.Create(outputFile)
	if err != nil {
		return err
	}
	defer file.Close()

	cr, err := client.ParseCollectResponse(resp, file)
	if err != nil {
		return err
	}

	if !cr.Exists {
		logging.S().Errorw("no such run", "run_id", runid, "runner", runner)
		return os.Remove(outputFile)
	}

	logging.S().Infof("created file: %s", outputFile)
	return nil
}
