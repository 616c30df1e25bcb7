package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *globalOptions, stdout io.Writer) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prune old backups in every region, then back up tagged instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd.Context(), opts, stdout, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log what would be deleted and created without changing anything")
	return cmd
}

// runBackup performs a single run. Partial failures are logged and still exit 0; only a
// failed run is returned as an error.
func runBackup(ctx context.Context, opts *globalOptions, stdout io.Writer, dryRun bool) error {
	a, err := loadApp(opts, stdout, true)
	if err != nil {
		return err
	}
	defer a.Close()
	a.abortInterruptedRuns(ctx)

	r, err := a.newRunner(ctx)
	if err != nil {
		return err
	}
	r.DryRun = dryRun
	_, err = r.RunOnce(ctx)
	return err
}
