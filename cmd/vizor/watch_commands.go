package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/vizor-labs/vizor/client"
)

func watchAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Register a wallet for periodic insight refreshes",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "timezone",
				Usage: "IANA timezone used when computing the wallet's insights",
				Value: "UTC",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Refresh interval (0 = server default)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := newClient(c)
			watch, err := cl.CreateWatch(context.Background(), address, c.String("timezone"), c.Duration("interval"))
			if err != nil {
				return fmt.Errorf("failed to register watch: %w", err)
			}

			if c.Bool("json") || c.String("filter") != "" {
				return printJSON(c, watch)
			}

			fmt.Printf("Watching %s (every %s, tz %s)\n", watch.Address, watch.RefreshInterval, watch.Timezone)
			return nil
		},
	}
}

func watchRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Unregister a watched wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := newClient(c)
			if err := cl.DeleteWatch(context.Background(), address); err != nil {
				return fmt.Errorf("failed to unregister watch: %w", err)
			}

			fmt.Printf("Stopped watching %s\n", address)
			return nil
		},
	}
}

func watchGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a watched wallet's registration",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := newClient(c)
			watch, err := cl.GetWatch(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to get watch: %w", err)
			}

			if c.Bool("json") || c.String("filter") != "" {
				return printJSON(c, watch)
			}

			printWatch(watch)
			return nil
		},
	}
}

func watchListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all watched wallets",
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			watches, err := cl.ListWatches(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list watches: %w", err)
			}

			if c.Bool("json") || c.String("filter") != "" {
				return printJSON(c, watches)
			}

			if len(watches) == 0 {
				fmt.Println("No watched wallets.")
				return nil
			}
			for _, w := range watches {
				fmt.Printf("%s  every %-8s  tz %s\n", w.Address, w.RefreshInterval, w.Timezone)
			}
			return nil
		},
	}
}

func printWatch(w *client.Watch) {
	fmt.Printf("Address:   %s\n", w.Address)
	fmt.Printf("Timezone:  %s\n", w.Timezone)
	fmt.Printf("Interval:  %s\n", w.RefreshInterval)
	if !w.CreatedAt.IsZero() {
		fmt.Printf("Created:   %s\n", w.CreatedAt.Format(time.RFC3339))
	}
	if !w.UpdatedAt.IsZero() {
		fmt.Printf("Updated:   %s\n", w.UpdatedAt.Format(time.RFC3339))
	}
}
