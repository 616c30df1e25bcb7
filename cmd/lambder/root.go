package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/polarfoxDev/lambder/internal/cloud"
	"github.com/polarfoxDev/lambder/internal/config"
	"github.com/polarfoxDev/lambder/internal/database"
	"github.com/polarfoxDev/lambder/internal/logging"
	"github.com/polarfoxDev/lambder/internal/metrics"
	"github.com/polarfoxDev/lambder/internal/runner"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "lambder",
		Short:         "Back up tagged EC2 instances as images and prune old backups",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd.Context(), opts, stdout, false)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	defaultConfig := os.Getenv("LAMBDER_CONFIG")
	if defaultConfig == "" {
		defaultConfig = config.DefaultPath
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfig, "Path to the config file (env LAMBDER_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Console log level (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(opts, stdout))
	cmd.AddCommand(newPlanCmd(opts, stdout))
	cmd.AddCommand(newScheduleCmd(opts, stdout))
	cmd.AddCommand(newHistoryCmd(opts, stdout))
	cmd.AddCommand(newVersionCmd(stdout))
	return cmd
}

// execute runs the command tree and maps the outcome to a process exit code
func execute(ctx context.Context, root *cobra.Command) int {
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// app holds everything a command needs once the config is loaded
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	db     *database.DB
}

// loadApp reads the config and opens the state database when withState is set and one
// is configured
func loadApp(opts *globalOptions, console io.Writer, withState bool) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	if withState && cfg.StateDB != "" {
		db, err := database.InitDB(cfg.StateDB)
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
		a.db = db
		a.logger = logging.New(db.GetDB(), console)
	} else {
		a.logger = logging.New(nil, console)
	}
	a.logger.SetLevel(logging.ParseLevel(opts.logLevel))
	return a, nil
}

// abortInterruptedRuns marks runs left in progress by a previous process as aborted.
// Only commands that start runs call it, so a run owned by another live process is not
// touched by read-only commands.
func (a *app) abortInterruptedRuns(ctx context.Context) {
	if a.db == nil {
		return
	}
	if n, err := a.db.CleanupInterruptedRuns(ctx); err != nil {
		a.logger.Warn("%v", err)
	} else if n > 0 {
		a.logger.Warn("marked %d interrupted run(s) as aborted", n)
	}
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *app) newRunner(ctx context.Context) (*runner.Runner, error) {
	compute, err := cloud.NewFromConfig(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	var rec *metrics.Recorder
	if a.cfg.MetricsFile != "" || a.cfg.API.Listen != "" {
		rec = metrics.NewRecorder()
	}
	return runner.New(compute, a.cfg, a.logger, a.db, rec), nil
}
