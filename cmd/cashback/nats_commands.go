package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/cashback/service/nats"
	"github.com/urfave/cli/v2"
)

// natsSubscribeCommand reads eligibility events straight from JetStream,
// bypassing the API server.
func natsSubscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to eligibility events",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to eligibility events published to NATS JetStream.

Events are published to the subject: eligibility.{wallet_address}
Without a wallet every event is printed.

Example:
  cashback nats subscribe 0xabc... --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "where",
				Usage: "jq expression an event must satisfy to be printed",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("accepts at most one argument: wallet address")
			}
			wallet := c.Args().First()

			match, err := eventMatcher(c.String("where"))
			if err != nil {
				return err
			}

			sub, err := natspkg.NewSubscriber(c.String("nats-url"), cliLogger())
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			subject := natspkg.StreamSubjects
			if wallet != "" {
				subject = natspkg.Subject(wallet)
			}
			if !wantJSON(c) {
				fmt.Fprintf(c.App.ErrWriter, "Subscribed to %s, press Ctrl+C to stop\n", subject)
			}

			return sub.Subscribe(ctx, wallet, func(e *natspkg.EligibilityEvent) {
				if !match(e) {
					return
				}
				if wantJSON(c) {
					_ = printJSON(c, e)
					return
				}
				fmt.Fprintf(c.App.Writer, "[%s] %s cashback=%.2f %s (sent %.2f over %d txs)\n",
					e.PublishedAt.Format(time.RFC3339),
					e.WalletAddress,
					e.CashbackAmount,
					e.Unit,
					e.TotalAmountSent,
					e.TransactionCount,
				)
			})
		},
	}
}
