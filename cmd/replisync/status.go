package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/replisync/internal/replica"
	"github.com/openmined/replisync/internal/store"
	"github.com/spf13/cobra"
)

type tableStatus struct {
	Table      string `json:"table"`
	Records    int    `json:"records"`
	Tombstones int    `json:"tombstones"`
}

type collectionStatus struct {
	Name       string      `json:"name"`
	Direction  string      `json:"direction"`
	Policy     string      `json:"conflict_policy"`
	LastSyncAt *time.Time  `json:"last_sync_at"`
	Local      tableStatus `json:"local"`
	Cloud      tableStatus `json:"cloud"`
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show checkpoints and row counts per collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses := make([]collectionStatus, 0, len(a.collections))
			for _, c := range a.collections {
				st, err := a.collectionStatus(cmd.Context(), c)
				if err != nil {
					return err
				}
				statuses = append(statuses, st)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}
			return printStatus(cmd.OutOrStdout(), statuses)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (a *app) collectionStatus(ctx context.Context, c replica.Collection) (collectionStatus, error) {
	st := collectionStatus{
		Name:      c.Name,
		Direction: c.Direction.String(),
		Policy:    c.Policy.String(),
	}

	last, err := a.local.GetLastSyncAt(ctx, c.Name)
	if err != nil {
		return st, err
	}
	st.LastSyncAt = last

	if st.Local, err = tableStatusOf(ctx, a.local, c.LocalTable); err != nil {
		return st, err
	}
	if st.Cloud, err = tableStatusOf(ctx, a.cloud, c.CloudTable); err != nil {
		return st, err
	}
	return st, nil
}

func tableStatusOf(ctx context.Context, s *store.SqliteStore, table string) (tableStatus, error) {
	if err := s.EnsureTable(ctx, table); err != nil {
		return tableStatus{}, err
	}
	total, tombstones, err := s.Count(ctx, table)
	if err != nil {
		return tableStatus{}, err
	}
	return tableStatus{Table: table, Records: total, Tombstones: tombstones}, nil
}

func printStatus(w io.Writer, statuses []collectionStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tMODE\tLAST SYNC\tLOCAL\tCLOUD")
	for _, st := range statuses {
		last := "never"
		if st.LastSyncAt != nil {
			last = humanize.Time(*st.LastSyncAt)
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%s\n",
			st.Name, st.Direction, st.Policy, last,
			formatTable(st.Local), formatTable(st.Cloud),
		)
	}
	return tw.Flush()
}

func formatTable(t tableStatus) string {
	return fmt.Sprintf("%s: %s (%s deleted)", t.Table, humanize.Comma(int64(t.Records)), humanize.Comma(int64(t.Tombstones)))
}
