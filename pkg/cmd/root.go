package cmd

import "github.com/urfave/cli/v2"

// RootCommands collects all subcommands of the vltest CLI.
var RootCommands = cli.Commands{
	&RunCommand,
	&BuildCommand,
	&SuiteCommand,
	&ListCommand,
	&DescribeCommand,
	&DaemonCommand,
	&TasksCommand,
	&StatusCommand,
	&LogsCommand,
	&CollectCommand,
	&CancelCommand,
	&HealthcheckCommand,
	&VersionCommand,
}

var RootFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "v",
		Usage: "verbose output (equivalent to DEBUG log level)",
	},
	&cli.BoolFlag{
		Name:  "vv",
		Usage: "super verbose output (equivalent to DEBUG log level for now, it may accommodate TRACE in the future)",
	},
	&cli.StringFlag{
		Name:  "endpoint",
		Usage: "set the daemon endpoint (overrides .env.toml)",
	},
}
