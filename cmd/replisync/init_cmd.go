package main

import (
	"fmt"

	"github.com/openmined/replisync/internal/config"
	"github.com/openmined/replisync/internal/utils"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var (
		force         bool
		databaseFile  string
		cloudDatabase string
		everySeconds  int
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			path, err := utils.ResolvePath(path)
			if err != nil {
				return err
			}
			if utils.FileExists(path) && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}

			cfg := config.Starter()
			if databaseFile != "" {
				cfg.DatabaseFile = databaseFile
			}
			cfg.CloudDatabaseFile = cloudDatabase
			if everySeconds > 0 {
				cfg.Schedule = &config.Schedule{Type: config.ScheduleInterval, EverySeconds: everySeconds}
			}

			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config")
	cmd.Flags().StringVar(&databaseFile, "database", "", "local database file")
	cmd.Flags().StringVar(&cloudDatabase, "cloud-database", "", "separate database file for cloud tables")
	cmd.Flags().IntVar(&everySeconds, "every", 0, "sync every N seconds when running")
	return cmd
}
