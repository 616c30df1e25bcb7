package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *globalOptions, stdout io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the state database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(opts, cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.db == nil {
				return errors.New("no stateDB configured")
			}

			runs, err := a.db.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(stdout, "No runs recorded")
				return nil
			}

			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tSTATUS\tDRY RUN\tDELETED\tCREATED\tFAILURES")
			for _, run := range runs {
				duration := "-"
				if run.CompletedAt != nil {
					duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%d\t%d\t%d\n",
					run.ID, run.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, run.Status,
					run.DryRun, run.ImagesDeleted, run.ImagesCreated, run.Failures)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	return cmd
}
