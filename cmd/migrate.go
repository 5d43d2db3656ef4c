package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cppla/vibemusic/config"
	"github.com/cppla/vibemusic/migrations"
)

// NewMigrateCommand creates the migrate command with up, down and status subcommands.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(migrateSub("up", "Apply all pending migrations", migrations.Up))
	cmd.AddCommand(migrateSub("down", "Roll back the latest migration", migrations.Down))
	cmd.AddCommand(migrateSub("status", "Show applied migrations", migrations.Status))
	return cmd
}

func migrateSub(use, short string, run func(db *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Load()
			gdb, err := config.InitDatabase()
			if err != nil {
				return err
			}
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			if err := run(sqlDB); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			return nil
		},
	}
}
