package main

import (
	"fmt"
	"time"

	"github.com/brojonat/cashback/service/temporal"
	"github.com/urfave/cli/v2"
)

func refreshCommands() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Eligible user refresh schedule commands",
		Subcommands: []*cli.Command{
			{
				Name:  "trigger",
				Usage: "Start one refresh run now",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "via-temporal",
						Usage: "Start the workflow directly instead of through the API",
					},
				},
				Action: func(c *cli.Context) error {
					var runID string
					if c.Bool("via-temporal") {
						tc, err := getScheduler(c)
						if err != nil {
							return err
						}
						defer tc.Close()
						if runID, err = tc.TriggerRefresh(c.Context); err != nil {
							return err
						}
					} else {
						cl, err := apiClient(c)
						if err != nil {
							return err
						}
						if runID, err = cl.TriggerRefresh(c.Context); err != nil {
							return fmt.Errorf("failed to trigger refresh: %w", err)
						}
					}

					if wantJSON(c) {
						return printJSON(c, map[string]string{"runId": runID})
					}
					fmt.Fprintf(c.App.Writer, "✓ Refresh started: %s\n", runID)
					return nil
				},
			},
			{
				Name:  "schedule",
				Usage: "Create or update the periodic refresh schedule",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Value:   15 * time.Minute,
						Usage:   "How often to recheck eligible users",
					},
				},
				Action: func(c *cli.Context) error {
					interval := c.Duration("interval")
					if interval < time.Minute {
						return fmt.Errorf("interval must be at least 1m, got %v", interval)
					}
					tc, err := getScheduler(c)
					if err != nil {
						return err
					}
					defer tc.Close()

					if err := tc.UpsertRefreshSchedule(c.Context, interval); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "✓ Schedule %s runs every %v\n", temporal.RefreshScheduleID, interval)
					return nil
				},
			},
			{
				Name:  "unschedule",
				Usage: "Delete the periodic refresh schedule",
				Action: func(c *cli.Context) error {
					tc, err := getScheduler(c)
					if err != nil {
						return err
					}
					defer tc.Close()

					if err := tc.DeleteRefreshSchedule(c.Context); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "✓ Schedule %s deleted\n", temporal.RefreshScheduleID)
					return nil
				},
			},
		},
	}
}

// Helper function to connect to Temporal
func getScheduler(c *cli.Context) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		cliLogger(),
	)
}
