package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

func explainCommand() *cli.Command {
	return &cli.Command{
		Name:      "explain",
		Usage:     "Explain a transaction in plain English",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("transaction signature is required")
			}
			signature := c.Args().Get(0)

			cl := newClient(c)
			expl, err := cl.Explain(context.Background(), signature, c.String("tz"))
			if err != nil {
				return fmt.Errorf("failed to explain transaction: %w", err)
			}

			if c.Bool("json") || c.String("filter") != "" {
				return printJSON(c, expl)
			}

			fmt.Printf("When:      %s\n", expl.When)
			if expl.Cached {
				fmt.Println("(cached)")
			}
			fmt.Println()
			fmt.Println(expl.Explainer)
			if len(expl.Keypoints) > 0 {
				fmt.Println()
				for _, kp := range expl.Keypoints {
					fmt.Printf("  - %s\n", kp)
				}
			}
			return nil
		},
	}
}

func insightsCommand() *cli.Command {
	return &cli.Command{
		Name:      "insights",
		Usage:     "Compute analytics over a wallet's recent transactions",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Number of transactions to analyze (1-100, 0 = server default)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			cl := newClient(c)
			insights, err := cl.WalletInsights(context.Background(), address, c.String("tz"), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to compute insights: %w", err)
			}

			return printJSON(c, insights)
		},
	}
}
