package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/openmined/replisync/internal/seed"
	"github.com/spf13/cobra"
)

func newEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Modify a record in place, as an application would",
	}
	cmd.AddCommand(newEditUpdateCmd(), newEditDeleteCmd())
	return cmd
}

func newEditUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <table> <id> <quantity>",
		Short: "Set a record's quantity",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", args[2], err)
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
			r, err := seed.UpdateQuantity(cmd.Context(), s, args[0], args[1], qty, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newEditDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <id>",
		Short: "Soft-delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.storeFor(args[0])
			if err != nil {
				return err
			}
			r, err := seed.SoftDelete(cmd.Context(), s, args[0], args[1], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r)
			return nil
		},
	}
}
