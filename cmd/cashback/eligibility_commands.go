package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/cashback/client"
	"github.com/urfave/cli/v2"
)

func apiClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	return client.NewClient(serverURL, nil, cliLogger()), nil
}

func eligibilityCommands() *cli.Command {
	return &cli.Command{
		Name:    "eligibility",
		Aliases: []string{"elig"},
		Usage:   "Cashback eligibility commands",
		Subcommands: []*cli.Command{
			checkCommand(),
			awaitEligibilityCommand(),
			streamEligibilityCommand(),
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check whether a wallet qualifies for cashback",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}

			result, err := cl.CheckEligibility(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("eligibility check failed: %w", err)
			}

			if wantJSON(c) {
				return printJSON(c, result)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Wallet:        %s\n", result.WalletAddress)
			fmt.Fprintf(out, "Eligible:      %t\n", result.IsEligible)
			fmt.Fprintf(out, "Total Sent:    %.2f %s (threshold %.2f)\n", result.TotalAmountSent, result.Unit, result.Threshold)
			fmt.Fprintf(out, "Cashback:      %.2f %s\n", result.CashbackAmount, result.Unit)
			fmt.Fprintf(out, "Transactions:  %d\n", result.TransactionCount)
			for _, d := range result.Degraded {
				fmt.Fprintf(c.App.ErrWriter, "warning: %s data unavailable, total may be understated\n", d)
			}
			if len(result.Transactions) > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CHAIN\tHASH\tAMOUNT\tUSD\tTIME")
				for _, tx := range result.Transactions {
					fmt.Fprintf(w, "%s\t%s\t%.6f\t$%.2f\t%s\n",
						tx.Chain, tx.Hash, tx.Amount, tx.USDValue, tx.Timestamp.Format(time.RFC3339))
				}
				w.Flush()
			}
			return nil
		},
	}
}

func awaitEligibilityCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a wallet is announced as eligible",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   10 * time.Minute,
				Usage:   "Maximum time to wait",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}

			wallet := c.Args().First()
			timeout := c.Duration("timeout")
			if !wantJSON(c) {
				fmt.Fprintf(c.App.ErrWriter, "Waiting for %s to become eligible (timeout %v)...\n", wallet, timeout)
			}

			ctx, cancel := context.WithTimeout(c.Context, timeout)
			defer cancel()

			event, err := cl.AwaitEligibility(ctx, wallet)
			if err != nil {
				return fmt.Errorf("failed to await eligibility: %w", err)
			}

			if wantJSON(c) {
				return printJSON(c, event)
			}
			printEvent(c, event)
			return nil
		},
	}
}

func streamEligibilityCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Stream eligibility events from the server",
		Description: `Connect to the server's eligibility event stream and print every event.

Examples:
  cashback eligibility stream
  cashback eligibility stream --wallet 0xabc... --json
  cashback eligibility stream --where '.cashback_amount > 5'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Only stream events for this wallet",
			},
			&cli.StringFlag{
				Name:  "where",
				Usage: "jq expression an event must satisfy to be printed",
			},
		},
		Action: func(c *cli.Context) error {
			cl, err := apiClient(c)
			if err != nil {
				return err
			}

			match, err := eventMatcher(c.String("where"))
			if err != nil {
				return err
			}

			err = cl.StreamEligibility(c.Context, c.String("wallet"), func(e *client.EligibilityEvent) error {
				if !match(e) {
					return nil
				}
				if wantJSON(c) {
					return printJSON(c, e)
				}
				printEvent(c, e)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// eventMatcher compiles the --where expression; an empty one matches all.
func eventMatcher(where string) (func(interface{}) bool, error) {
	if where == "" {
		return func(interface{}) bool { return true }, nil
	}
	code, err := compileJQ(where)
	if err != nil {
		return nil, err
	}
	return func(v interface{}) bool { return matchJQ(code, v) }, nil
}

func printEvent(c *cli.Context, e *client.EligibilityEvent) {
	fmt.Fprintf(c.App.Writer, "[%s] %s eligible=%t sent=%.2f cashback=%.2f %s (%d txs)\n",
		e.CheckedAt.Format(time.RFC3339),
		e.WalletAddress,
		e.IsEligible,
		e.TotalAmountSent,
		e.CashbackAmount,
		e.Unit,
		e.TransactionCount,
	)
}
