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

// BuildCommand is the specification of the `build` command. A build is a
// compile-only pass: cases are compiled, and natively built where requested,
// but their log assertions are not evaluated.
var BuildCommand = cli.Command{
	Name:   "build",
	Usage:  "request the daemon to compile test cases without asserting their logs",
	Action: buildCommand,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "suite",
			Aliases:  []string{"s"},
			Usage:    "name of the suite to compile cases from",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "scenario",
			Usage:    "scenario tag to compile the cases under",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:    "case",
			Aliases: []string{"t"},
			Usage:   "case to compile; repeatable; all cases in the suite when omitted",
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
			Usage:   "wait for the build to finish, streaming its log",
		},
	},
}

func buildCommand(c *cli.Context) error {
	cl, cfg, err := setupClient(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	_, manifest, err := resolveSuite(cfg, c.String("suite"))
	if err != nil {
		return fmt.Errorf("failed to resolve suite: %w", err)
	}

	runcfg, err := parseRunnerConfig(c)
	if err != nil {
		return err
	}

	req := &api.BuildRequest{
		Suite:        manifest.Name,
		Scenario:     c.String("scenario"),
		Cases:        c.StringSlice("case"),
		Runner:       c.String("runner"),
		RunnerConfig: runcfg,
		Manifest:     *manifest,
		CreatedBy:    task.CreatedBy{User: cfg.Client.User},
	}

	if c.Bool("wait") {
		req.Priority = 1
	}

	resp, err := cl.Build(ctx, req)
	switch err {
	case nil:
		// noop
	case context.Canceled:
		return fmt.Errorf("interrupted")
	default:
		return err
	}
	defer resp.Close()

	res, err := client.ParseBuildResponse(resp)
	if err != nil {
		return err
	}

	logging.S().Infof("build is queued with ID: %s", res.TaskID)

	if !c.Bool("wait") {
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

	outcome, err := data.DecodeTaskOutcome(&tsk)
	if err != nil {
		return err
	}
	if data.IsTaskOutcomeInError(outcome) {
		return cli.Exit(fmt.Sprintf("build finished with outcome: %s", outcome), 1)
	}

	logging.S().Infof("finished build with ID: %s", res.TaskID)
	return nil
}
