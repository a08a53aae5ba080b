package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
	"github.com/vltest/vltest/pkg/data"
	"github.com/vltest/vltest/pkg/logging"
	"github.com/vltest/vltest/pkg/task"
)

// RunCommand is the specification of the `run` command.
var RunCommand = cli.Command{
	Name:   "run",
	Usage:  "request the daemon to evaluate test cases from a suite",
	Action: runCommand,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "suite",
			Aliases:  []string{"s"},
			Usage:    "name of the suite to run cases from",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "scenario",
			Usage:    "scenario tag to evaluate the cases under, e.g. 'vlt', 'vltmt', 'lint'",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:    "case",
			Aliases: []string{"t"},
			Usage:   "case to run; repeatable; all cases in the suite when omitted",
		},
		&cli.StringFlag{
			Name:    "runner",
			Aliases: []string{"r"},
			Usage:   "runner to use; values include: 'local:exec'",
			Value:   "local:exec",
		},
		&cli.StringSliceFlag{
			Name:  "run-cfg",
			Usage: "override runner configuration",
		},
		&cli.BoolFlag{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "wait for the run to finish, streaming its log",
		},
		&cli.BoolFlag{
			Name:  "collect",
			Usage: "collect outputs at the end of the run; implies --wait; without --collect-file, it writes to <task_id>.tgz",
		},
		&cli.StringFlag{
			Name:    "collect-file",
			Aliases: []string{"o"},
			Usage:   "write the collection output archive to `FILENAME`",
		},
	},
}

func runCommand(c *cli.Context) error {
	cl, cfg, err := setupClient(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	// Resolve the suite and its manifest client-side, so that a stale
	// daemon-side cache never masks local edits.
	_, manifest, err := resolveSuite(cfg, c.String("suite"))
	if err != nil {
		return fmt.Errorf("failed to resolve suite: %w", err)
	}

	runcfg, err := parseRunnerConfig(c)
	if err != nil {
		return err
	}

	wait := c.Bool("wait") || c.Bool("collect")

	req := &api.RunRequest{
		Suite:        manifest.Name,
		Scenario:     c.String("scenario"),
		Cases:        c.StringSlice("case"),
		Runner:       c.String("runner"),
		RunnerConfig: runcfg,
		Manifest:     *manifest,
		CreatedBy:    task.CreatedBy{User: cfg.Client.User},
	}

	if wait {
		req.Priority = 1
	}

	resp, err := cl.Run(ctx, req)
	switch err {
	case nil:
		// noop
	case context.Canceled:
		return fmt.Errorf("interrupted")
	default:
		return err
	}
	defer resp.Close()

	res, err := client.ParseRunResponse(resp)
	if err != nil {
		return err
	}

	logging.S().Infof("run is queued with ID: %s", res.TaskID)

	if !wait {
		return nil
	}

	r, err := cl.Logs(ctx, &api.LogsRequest{
		TaskID:            res.TaskID,
		Follow:            true,
		CancelWithContext: true,
	})
	if err != nil {
		return err
	}
	defer r.Close()

	tsk, err := client.ParseLogsResponse(os.Stdout, r)
	if err != nil {
		return err
	}

	if tsk.Error != "" {
		return errors.New(tsk.Error)
	}

	logging.S().Infof("finished run with ID: %s", res.TaskID)

	if c.Bool("collect") {
		collectFile := c.String("collect-file")
		if collectFile == "" {
			collectFile = fmt.Sprintf("%s.tgz", res.TaskID)
		}

		if err := collect(ctx, cl, req.Runner, res.TaskID, collectFile); err != nil {
			return cli.Exit(err.Error(), 2)
		}
	}

	outcome, err := data.DecodeTaskOutcome(&tsk)
	if err != nil {
		return err
	}
	if data.IsTaskOutcomeInError(outcome) {
		return cli.Exit(fmt.Sprintf("run finished with outcome: %s", outcome), 1)
	}
	return nil
}
