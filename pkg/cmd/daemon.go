package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vltest/vltest/pkg/config"
	"github.com/vltest/vltest/pkg/daemon"
	"github.com/vltest/vltest/pkg/logging"
)

// DaemonCommand is the specification of the `daemon` command.
var DaemonCommand = cli.Command{
	Name:   "daemon",
	Usage:  "start a long-running daemon process",
	Action: daemonCommand,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "listen address (overrides .env.toml)",
		},
	},
}

func daemonCommand(c *cli.Context) error {
	ctx, cancel := context.WithCancel(ProcessContext())
	defer cancel()

	cfg := &config.EnvConfig{}
	if err := cfg.Load(); err != nil {
		return err
	}

	if listen := c.String("listen"); listen != "" {
		cfg.Daemon.Listen = listen
	}

	srv, err := daemon.New(cfg)
	if err != nil {
		return err
	}

	exiting := make(chan struct{})
	defer close(exiting)

	go func() {
		select {
		case <-ctx.Done():
		case <-exiting:
			// no need to shutdown in this case.
			return
		}

		logging.S().Infow("shutting down daemon")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logging.S().Fatalw("failed to shut down daemon", "err", err)
		}
		logging.S().Infow("daemon stopped")
	}()

	err = srv.Serve()
	if err == http.ErrServerClosed {
		err = nil
	}
	return err
}
