package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/replisync/internal/utils"
	"github.com/openmined/replisync/internal/version"
	"github.com/spf13/cobra"
)

// closeLog flushes and closes the log file opened by setupLogging, if any.
var closeLog = func() {}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "replisync",
		Short:         "Keep local and cloud record tables in sync",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./replisync.yaml or ~/.replisync/replisync.yaml)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	rootCmd.AddCommand(
		newRunCmd(),
		newInitCmd(),
		newSeedCmd(),
		newEditCmd(),
		newStatusCmd(),
		newPurgeCmd(),
		newResetCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func setupLogging(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	logFile, _ := cmd.Flags().GetString("log-file")
	if logFile == "" {
		slog.SetDefault(slog.New(stdoutHandler))
		return nil
	}

	if err := utils.EnsureParent(logFile); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	interceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// the interceptor stamps each line
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	closeLog = func() {
		interceptor.Close()
		file.Close()
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
