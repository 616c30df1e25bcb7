package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/polarfoxDev/lambder/internal/helpers"
	"github.com/polarfoxDev/lambder/internal/model"
	"github.com/polarfoxDev/lambder/internal/runner"
)

func newPlanCmd(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show which images would be deleted and which instances backed up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// plan output goes to stdout; log lines only to stderr
			a, err := loadApp(opts, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.newRunner(ctx)
			if err != nil {
				return err
			}
			r.DryRun = true

			summaries := r.PruneRegions(ctx, a.cfg.Regions)
			printPrunePlan(stdout, summaries)

			candidates, failures, err := r.Candidates(ctx, a.cfg.DefaultRegion)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout)
			printBackupPlan(stdout, r, a.cfg.DefaultRegion, candidates, failures)
			return nil
		},
	}
}

func printPrunePlan(w io.Writer, summaries []model.RegionSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tSOURCE\tIMAGE\tCREATED\tACTION")
	for _, s := range summaries {
		if s.ListFailed {
			fmt.Fprintf(tw, "%s\t-\t-\t-\terror: %s\n", s.Region, s.Failures[0].Error)
			continue
		}
		for _, d := range s.Planned {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\tdelete\n", s.Region, d.Source, d.ImageID, d.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		for _, id := range s.Unresolved {
			fmt.Fprintf(tw, "%s\t-\t%s\t-\tkeep (unresolved)\n", s.Region, id)
		}
	}
	_ = tw.Flush()
}

func printBackupPlan(w io.Writer, r *runner.Runner, region string, candidates []runner.Candidate, failures []model.ItemResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tINSTANCE\tSOURCE\tIMAGE NAME\tREPLICATE")
	for _, c := range candidates {
		req := r.Creator.Request(c.Instance, c.Source)
		replicate := "no"
		if helpers.HasTag(req.Tags, r.Config.ReplicateTag) {
			replicate = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", region, c.Instance.ID, c.Source, req.Name, replicate)
	}
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%s\t-\t-\tskip: %s\n", region, f.ResourceID, f.Error)
	}
	_ = tw.Flush()
}
