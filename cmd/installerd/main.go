// Command installerd runs the installer daemon for one host bundle
// identifier: it accepts the updater and agent connections, drives the
// three-stage install, and exits once the swap is complete or has failed
// fatally.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"installerd/internal/installerconf"
)

// version/commit are set via ldflags at build time, matching the
// teacher's cmd/updater version reporting.
var (
	version = "dev"
	commit  = "unknown"
)

func init() {
	installerconf.Load()
}

func main() {
	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "installerd: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "installerd",
		Usage:   "install a downloaded update for one host bundle identifier",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "identifier",
				Usage:    "host bundle identifier this daemon installs updates for",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "allow-interaction",
				Usage: "permit the package backend to prompt the user",
			},
			&cli.StringFlag{
				Name:  "agent-endpoint",
				Usage: "override the agent's listening socket path",
			},
			&cli.StringFlag{
				Name:  "base-dir",
				Usage: "parent directory for staging, backup, and lock files",
				Value: installerconf.BaseDir(),
			},
		},
		Commands: []*cli.Command{
			versionCommand(),
		},
		Action: runDaemon,
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "print version and exit",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("installerd %s (%s)\n", version, commit)
			return nil
		},
	}
}
