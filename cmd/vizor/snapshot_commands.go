package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func snapshotsListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "List stored insight snapshots for a wallet, newest first",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of snapshots to return (0 = server default)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := newClient(c)
			snaps, err := cl.ListSnapshots(context.Background(), address, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			if c.Bool("json") || c.String("filter") != "" {
				return printJSON(c, snaps)
			}

			if len(snaps) == 0 {
				fmt.Println("No snapshots.")
				return nil
			}
			for _, s := range snaps {
				fmt.Printf("#%-6d %s  %3d txs  %s\n",
					s.ID, s.ComputedAt.Format(time.RFC3339), s.TxCount, s.Timezone)
			}
			return nil
		},
	}
}

func snapshotsLatestCommand() *cli.Command {
	return &cli.Command{
		Name:      "latest",
		Usage:     "Show the most recent insight snapshot for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := newClient(c)
			snap, err := cl.LatestSnapshot(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to get latest snapshot: %w", err)
			}

			return printJSON(c, snap)
		},
	}
}
