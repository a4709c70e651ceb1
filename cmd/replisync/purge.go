package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const defaultPurgeAge = 30 * 24 * time.Hour

func newPurgeCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge <table>",
		Short: "Hard-delete tombstones older than a cutoff",
		Long: `Permanently remove soft-deleted rows from a table.

Only purge tombstones that every replica has already received; a purged
tombstone can no longer propagate its delete.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.storeFor(args[0])
			if err != nil {
				return err
			}

			cutoff := time.Now().Add(-olderThan)
			n, err := s.PurgeTombstones(cmd.Context(), args[0], cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s tombstones deleted before %s\n", humanize.Comma(n), humanize.Time(cutoff))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", defaultPurgeAge, "minimum tombstone age")
	return cmd
}
