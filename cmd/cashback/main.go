package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cashback",
		Usage: "Multi-chain tax wallet cashback service CLI",
		Description: `A command-line tool for operating the cashback service.

Use this CLI to check wallet eligibility, inspect tax wallet aggregates,
manage eligible users and their payout status, and drive the refresh schedule.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			eligibilityCommands(),
			blockchainCommand(),
			walletCommand(),
			eligibleUsersCommands(),
			{
				Name:  "db",
				Usage: "Database migration and inspection commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					rollbackCommand(),
					schemaVersionCommand(),
					listUsersCommand(),
					listEligibleCommand(),
				},
			},
			refreshCommands(),
			{
				Name:  "nats",
				Usage: "NATS eligibility event commands",
				Subcommands: []*cli.Command{
					natsSubscribeCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "server-url",
			Usage:   "Cashback API server URL",
			EnvVars: []string{"SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue of the refresh worker",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "cashback-refresh",
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
			Value:   "nats://localhost:4222",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq expression applied to JSON output (implies --json)",
		},
	}
}
