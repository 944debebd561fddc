package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
)

func blockchainCommand() *cli.Command {
	return &cli.Command{
		Name:    "blockchain",
		Aliases: []string{"bc"},
		Usage:   "Query tax wallet aggregates",
		Description: `Fetch one view of the tax wallet aggregation. The raw JSON response is printed.

Types: balances, dashboard, volume, tax-wallets, prices, transactions.
The period (daily, weekly, monthly) is only accepted for transactions.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "type",
				Aliases: []string{"t"},
				Value:   "balances",
				Usage:   "View to fetch",
			},
			&cli.StringFlag{
				Name:    "period",
				Aliases: []string{"p"},
				Usage:   "Transactions period",
			},
		},
		Action: func(c *cli.Context) error {
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			raw, err := cl.Blockchain(c.Context, c.String("type"), c.String("period"))
			if err != nil {
				return fmt.Errorf("failed to query blockchain data: %w", err)
			}
			return printRaw(c, raw)
		},
	}
}

func walletCommand() *cli.Command {
	return &cli.Command{
		Name:      "wallet",
		Usage:     "Show balances and recent transfers of any wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			cl, err := apiClient(c)
			if err != nil {
				return err
			}
			raw, err := cl.WalletData(c.Context, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to fetch wallet data: %w", err)
			}
			return printRaw(c, raw)
		},
	}
}

// printRaw prints an API response that has no table form.
func printRaw(c *cli.Context, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return printJSON(c, v)
}

func eligibleUsersCommands() *cli.Command {
	return &cli.Command{
		Name:    "eligible-users",
		Aliases: []string{"eu"},
		Usage:   "Manage users owed cashback",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List eligible users with a payout summary",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "status",
						Aliases: []string{"s"},
						Value:   "all",
						Usage:   "Filter by status (pending, approved, paid, all)",
					},
				},
				Action: func(c *cli.Context) error {
					cl, err := apiClient(c)
					if err != nil {
						return err
					}
					resp, err := cl.ListEligibleUsers(c.Context, c.String("status"))
					if err != nil {
						return fmt.Errorf("failed to list eligible users: %w", err)
					}

					if wantJSON(c) {
						return printJSON(c, resp)
					}

					w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tWALLET\tSENT\tCASHBACK\tTXS\tSTATUS\tLAST CHECKED")
					for _, u := range resp.Users {
						fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%d\t%s\t%s\n",
							u.ID,
							u.WalletAddress,
							u.TotalAmountSent,
							u.CashbackAmount,
							u.TransactionCount,
							u.Status,
							u.LastChecked.Format(time.RFC3339),
						)
					}
					w.Flush()

					s := resp.Summary
					fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d users (%d pending, %d approved, %d paid), %.2f owed\n",
						s.TotalUsers, s.PendingUsers, s.ApprovedUsers, s.PaidUsers, s.TotalCashbackOwed)
					return nil
				},
			},
			{
				Name:      "set-status",
				Usage:     "Move an eligible user to pending, approved or paid",
				ArgsUsage: "USER_ID STATUS",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return fmt.Errorf("requires exactly two arguments: user id and status")
					}
					cl, err := apiClient(c)
					if err != nil {
						return err
					}
					id, status := c.Args().Get(0), c.Args().Get(1)
					if err := cl.UpdateEligibleUserStatus(c.Context, id, status); err != nil {
						return fmt.Errorf("failed to update status: %w", err)
					}
					if wantJSON(c) {
						return printJSON(c, map[string]string{"id": id, "status": status})
					}
					fmt.Fprintf(c.App.Writer, "✓ %s is now %s\n", id, status)
					return nil
				},
			},
		},
	}
}
