package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/inkwell/internal/app"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/logging"
	"github.com/spf13/cobra"
)

// application is opened before every command and closed after it.
var application *app.App

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "log debug output")
	rootCmd.AddGroup(projectGroup, pipelineGroup)
	rootCmd.AddCommand(projectCmd, runCmd, statusCmd, resetCmd, conflictsCmd, dashboardCmd, deleteChapterCmd)
}

var rootCmd = &cobra.Command{
	Use:           "inkwell",
	Long:          `Command line interface for the Inkwell chapter pipeline`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrap(err, "load .env")
		}
		cfg, err := config.Load(os.Environ())
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		level := slog.LevelInfo
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			AddSource:   false,
			Level:       level,
			ReplaceAttr: nil,
		})))
		if application, err = app.New(cmd.Context(), cfg, logger); err != nil {
			return errors.Wrap(err, "open application")
		}
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return application.Close()
	},
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
