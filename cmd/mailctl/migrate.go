package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mailarchive/backend/internal/app"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Database.Type == "" {
				return errors.New("database.type is not set; the memory store has no schema")
			}

			store, err := app.OpenStore(c.cfg.Database, c.log)
			if err != nil {
				return err
			}
			defer store.Close()

			migrator, ok := store.(interface{ Migrate(context.Context) error })
			if !ok {
				return fmt.Errorf("%s store does not support migrations", c.cfg.Database.Type)
			}
			if err := migrator.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", c.cfg.Database.Type)
			return nil
		},
	}
}
