package main

import (
	"fmt"
	"time"

	"github.com/openmined/replisync/internal/seed"
	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	var collections []string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo records on both sides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			colls, err := a.selectCollections(collections)
			if err != nil {
				return err
			}

			for _, c := range colls {
				recs, err := seed.Demo(cmd.Context(), a.local, a.cloud, c.LocalTable, c.CloudTable, time.Now())
				if err != nil {
					return fmt.Errorf("seed %s: %w", c.Name, err)
				}
				for _, r := range recs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", r.ID, r.Name, r.Quantity)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&collections, "collection", nil, "only seed these collections")
	return cmd
}
