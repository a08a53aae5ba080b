package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/api"
	"github.com/vltest/vltest/pkg/client"
	"github.com/vltest/vltest/pkg/data"
	"github.com/vltest/vltest/pkg/task"
)

// TasksCommand is the specification of the `tasks` command.
var TasksCommand = cli.Command{
	Name:   "tasks",
	Usage:  "list tasks from the past 24 hours",
	Action: tasksCommand,
	Flags: []cli.Flag{
		&cli.GenericFlag{
			Name:  "type",
			Usage: "filter by task type",
			Value: &EnumValue{Allowed: []string{"run", "build"}},
		},
		&cli.GenericFlag{
			Name:  "state",
			Usage: "filter by task state",
			Value: &EnumValue{Allowed: []string{"scheduled", "processing", "complete", "canceled"}},
		},
	},
}

func tasksCommand(c *cli.Context) error {
	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	cl, _, err := setupClient(c)
	if err != nil {
		return err
	}

	req := &api.TasksRequest{}

	if v := c.Generic("type").(*EnumValue).String(); v != "" {
		req.Types = []task.Type{task.Type(v)}
	}
	if v := c.Generic("state").(*EnumValue).String(); v != "" {
		req.States = []task.State{task.State(v)}
	}

	r, err := cl.Tasks(ctx, req)
	if err != nil {
		return err
	}
	defer r.Close()

	tsks, err := client.ParseTasksResponse(r)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tType\tSuite\tScenario\tState\tOutcome\tCreated\tTook")

	for _, tsk := range tsks {
		outcome, err := data.DecodeTaskOutcome(&tsk)
		if err != nil {
			outcome = task.OutcomeUnknown
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tsk.ID,
			tsk.Type,
			tsk.Suite,
			tsk.Scenario,
			tsk.State().State,
			outcome,
			humanize.Time(tsk.Created()),
			tsk.Took().Truncate(time.Millisecond),
		)
	}

	return nil
}
