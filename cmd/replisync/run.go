package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/replisync/internal/replica"
	"github.com/openmined/replisync/internal/scheduler"
	"github.com/openmined/replisync/internal/seed"
	"github.com/openmined/replisync/internal/sync"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		once        bool
		demo        bool
		collections []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync the configured collections",
		Long: `Run sync passes for the configured collections.

Without a schedule in the config (or with --once) a single pass is run for each
collection. With a schedule, passes repeat until interrupted.`,
		Args: cobra.NoArgs,
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

			lock := scheduler.NewRunLock(a.cfg.DatabaseFile)
			if err := lock.Lock(); err != nil {
				if errors.Is(err, scheduler.ErrLocked) {
					return fmt.Errorf("another sync is running on %s", a.cfg.DatabaseFile)
				}
				return err
			}
			defer lock.Unlock()

			ctx := cmd.Context()
			if demo {
				for _, c := range colls {
					if _, err := seed.Demo(ctx, a.local, a.cloud, c.LocalTable, c.CloudTable, time.Now()); err != nil {
						return fmt.Errorf("seed %s: %w", c.Name, err)
					}
				}
			}

			out := cmd.OutOrStdout()
			task := func(ctx context.Context) error {
				results, err := a.engine.RunAll(ctx, colls)
				printResults(out, colls, results)
				return err
			}

			if once || a.cfg.Schedule == nil {
				return task(ctx)
			}

			s, err := scheduler.New(a.cfg.Schedule)
			if err != nil {
				return err
			}
			if err := s.Run(ctx, task); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single pass even if a schedule is configured")
	cmd.Flags().BoolVar(&demo, "demo", false, "seed demo records before syncing")
	cmd.Flags().StringSliceVar(&collections, "collection", nil, "only sync these collections")
	return cmd
}

// printResults writes one line per collection. results is positional with colls;
// a pass that never advanced its checkpoint is reported as failed.
func printResults(w io.Writer, colls []replica.Collection, results []*sync.PassResult) {
	for i, c := range colls {
		if i >= len(results) || results[i] == nil {
			continue
		}
		r := results[i]
		if r.Checkpoint.IsZero() {
			fmt.Fprintf(w, "%s (%s, %s): failed after %s writes\n", c.Name, c.Direction, c.Policy, humanize.Comma(int64(r.Writes)))
			continue
		}
		fmt.Fprintf(w, "%s (%s, %s): %s changed, %s writes in %s\n",
			c.Name, c.Direction, c.Policy,
			humanize.Comma(int64(r.LocalChanged+r.CloudChanged)),
			humanize.Comma(int64(r.Writes)),
			r.Duration.Round(time.Millisecond),
		)
	}
}
