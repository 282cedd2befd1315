package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "vizor",
		Usage: "Solana transaction explanation and wallet analytics CLI",
		Description: `A command-line tool for the vizor analytics service.

Use this CLI to explain transactions, compute wallet insights, and manage
watched wallets.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			explainCommand(),
			insightsCommand(),
			// Watched-wallet management commands
			{
				Name:  "watch",
				Usage: "Watched wallet management commands",
				Subcommands: []*cli.Command{
					watchAddCommand(),
					watchRemoveCommand(),
					watchGetCommand(),
					watchListCommand(),
				},
			},
			// Stored snapshot commands
			{
				Name:  "snapshots",
				Usage: "Stored insight snapshot commands",
				Subcommands: []*cli.Command{
					snapshotsListCommand(),
					snapshotsLatestCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Analytics server URL",
				EnvVars: []string{"VIZOR_SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "tz",
				Usage:   "IANA timezone for date formatting",
				EnvVars: []string{"VIZOR_TZ"},
				Value:   "UTC",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to JSON output",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
