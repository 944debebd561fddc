package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/cashback/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

// Helper function to connect to database
func getPool(c *cli.Context) (*pgxpool.Pool, error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}
	pool, err := db.Connect(c.Context, dbURL)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	pool, err := getPool(c)
	if err != nil {
		return nil, nil, err
	}
	return db.NewStore(pool, nil), pool.Close, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply all pending schema migrations",
		Action: func(c *cli.Context) error {
			pool, err := getPool(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(pool); err != nil {
				return err
			}
			return reportVersion(c, pool)
		},
	}
}

func rollbackCommand() *cli.Command {
	return &cli.Command{
		Name:  "rollback",
		Usage: "Roll back every schema migration (destroys all data)",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "Confirm the rollback",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return fmt.Errorf("rollback drops every table; re-run with --yes to confirm")
			}
			pool, err := getPool(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.MigrateDown(pool); err != nil {
				return err
			}
			return reportVersion(c, pool)
		},
	}
}

func schemaVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema-version",
		Usage: "Show the applied schema version",
		Action: func(c *cli.Context) error {
			pool, err := getPool(c)
			if err != nil {
				return err
			}
			defer pool.Close()
			return reportVersion(c, pool)
		},
	}
}

func reportVersion(c *cli.Context, pool *pgxpool.Pool) error {
	version, dirty, err := db.MigrationVersion(pool)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if wantJSON(c) {
		return printJSON(c, map[string]interface{}{"version": version, "dirty": dirty})
	}
	fmt.Fprintf(c.App.Writer, "Schema version: %d", version)
	if dirty {
		fmt.Fprint(c.App.Writer, " (dirty)")
	}
	fmt.Fprintln(c.App.Writer)
	return nil
}

func listUsersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "List tracked users",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (ACTIVE, PENDING, PROCESSED, SUSPENDED)",
			},
			&cli.StringFlag{
				Name:    "chain",
				Aliases: []string{"c"},
				Usage:   "Filter by chain (SOL, ETH, BNB)",
			},
			&cli.IntFlag{
				Name:  "page",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "limit",
				Value: 50,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			users, total, err := store.ListUsers(context.Background(), db.ListUsersParams{
				Status: strings.ToUpper(c.String("status")),
				Chain:  strings.ToUpper(c.String("chain")),
				Page:   db.Page{Page: c.Int("page"), Limit: c.Int("limit")},
			})
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			if wantJSON(c) {
				return printJSON(c, users)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWALLET\tCHAIN\tVOLUME\tCASHBACK\tSTATUS\tCREATED")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
					u.ID,
					u.WalletAddress,
					u.Chain,
					u.TotalVolume,
					u.CashbackAmount,
					u.Status,
					u.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d users\n", total)
			return nil
		},
	}
}

func listEligibleCommand() *cli.Command {
	return &cli.Command{
		Name:  "eligible",
		Usage: "List eligible users straight from the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Value:   "all",
				Usage:   "Filter by status (pending, approved, paid, all)",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			users, err := store.ListEligibleUsers(context.Background(), c.String("status"))
			if err != nil {
				return fmt.Errorf("failed to list eligible users: %w", err)
			}

			if wantJSON(c) {
				return printJSON(c, users)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWALLET\tSENT\tCASHBACK\tSTATUS\tELIGIBLE SINCE")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
					u.ID,
					u.WalletAddress,
					u.TotalAmountSent,
					u.CashbackAmount,
					u.Status,
					u.EligibilityDate.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d eligible users\n", len(users))
			return nil
		},
	}
}
