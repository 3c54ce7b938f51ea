package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mailarchive/backend/internal/mboximport"
)

func newImportCmd(c *cli) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "import <mbox>",
		Short: "Import every message of an mbox file through the ingest pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open mbox: %w", err)
			}
			defer file.Close()

			comps, err := c.components(ctx)
			if err != nil {
				return err
			}
			defer comps.Close()

			importer := mboximport.New(comps.Ingest, mboximport.Options{
				Workers:         workers,
				MaxMessageBytes: c.cfg.SMTP.MaxMessageBytes,
			}, c.log, nil)

			stats, err := importer.Import(ctx, file)
			if stats != nil {
				if werr := writeJSON(cmd.OutOrStdout(), stats); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "Number of messages ingested concurrently")
	return cmd
}
