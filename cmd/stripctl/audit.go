package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/stripgate/internal/audit"
	"github.com/nerrad567/stripgate/internal/infrastructure/database"
	"github.com/nerrad567/stripgate/migrations"
)

const defaultAuditPath = "./data/stripgate.db"

// newAuditCmd groups the commands that work on the gateway's audit database
// directly, without the gateway running.
func newAuditCmd(opts *options) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and migrate the command audit database",
	}
	cmd.PersistentFlags().StringVar(&path, "db", defaultAuditPath, "Audit database file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending schema migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAuditDB(cmd.Context(), path, func(db *database.DB) error {
					if err := db.Migrate(cmd.Context(), migrations.FS); err != nil {
						return fmt.Errorf("migrating %s: %w", path, err)
					}
					return printVersions(cmd, db)
				})
			},
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "Roll back the most recent schema migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAuditDB(cmd.Context(), path, func(db *database.DB) error {
					if err := db.MigrateDown(cmd.Context(), migrations.FS); err != nil {
						return fmt.Errorf("rolling back %s: %w", path, err)
					}
					return printVersions(cmd, db)
				})
			},
		},
		&cobra.Command{
			Use:   "versions",
			Short: "List applied schema migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withAuditDB(cmd.Context(), path, func(db *database.DB) error {
					return printVersions(cmd, db)
				})
			},
		},
		newAuditListCmd(opts, &path),
	)
	return cmd
}

func newAuditListCmd(opts *options, path *string) *cobra.Command {
	var filter audit.Filter

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "Show recorded outlet commands, newest first",
		Example: "  stripctl audit list --address 10.0.0.5 --limit 20",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAuditDB(cmd.Context(), *path, func(db *database.DB) error {
				result, err := audit.NewSQLiteRepository(db.DB).List(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("listing audit entries: %w", err)
				}
				if opts.outputFormat == "json" {
					return writeJSON(cmd.OutOrStdout(), result)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tADDRESS\tOUTLET\tACTION\tSOURCE\tRESULT")
				for _, e := range result.Entries {
					outcome := "ok"
					if !e.Success {
						outcome = "failed: " + e.Error
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
						e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Address, e.Outlet, e.Action, e.Source, outcome)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(result.Entries), result.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.Address, "address", "", "Only this strip address")
	cmd.Flags().StringVar(&filter.Action, "action", "", "Only on or off")
	cmd.Flags().IntVar(&filter.Limit, "limit", audit.DefaultLimit, "Entries per page")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Entries to skip")
	return cmd
}

func withAuditDB(ctx context.Context, path string, fn func(db *database.DB) error) error {
	db, err := database.Open(ctx, database.Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		return fmt.Errorf("opening audit database: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func printVersions(cmd *cobra.Command, db *database.DB) error {
	versions, err := db.AppliedVersions(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}
	if len(versions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
		return nil
	}
	for _, v := range versions {
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}
