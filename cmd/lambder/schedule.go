package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/polarfoxDev/lambder/internal/api"
	"github.com/polarfoxDev/lambder/internal/auth"
	"github.com/polarfoxDev/lambder/internal/helpers"
)

func newScheduleCmd(opts *globalOptions, stdout io.Writer) *cobra.Command {
	var spec, listen string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(opts, stdout, true)
			if err != nil {
				return err
			}
			defer a.Close()
			a.abortInterruptedRuns(ctx)

			if spec == "" {
				spec = a.cfg.Schedule
			}
			if spec == "" {
				return errors.New("no schedule: set schedule in the config or pass --cron")
			}
			if err := helpers.ValidateCron(spec); err != nil {
				return err
			}
			if listen != "" {
				a.cfg.API.Listen = listen
			}
			if a.cfg.API.Listen != "" && a.db == nil {
				return errors.New("the status api needs a stateDB")
			}

			r, err := a.newRunner(ctx)
			if err != nil {
				return err
			}
			s, err := r.Schedule(ctx, spec)
			if err != nil {
				return err
			}

			apiErr := make(chan error, 1)
			if a.cfg.API.Listen != "" {
				srv := &api.Server{
					DB:          a.db,
					Logger:      a.logger,
					Gatherer:    r.Metrics.Registry(),
					Auth:        auth.New(a.cfg.API.Token),
					CORSOrigins: a.cfg.API.CORSOrigins,
				}
				a.logger.Info("status api listening on %s", a.cfg.API.Listen)
				go func() { apiErr <- srv.ListenAndServe(ctx, a.cfg.API.Listen) }()
			}

			select {
			case <-ctx.Done():
			case err = <-apiErr:
				a.logger.Error("%v", err)
			}
			a.logger.Info("shutting down, waiting for a running backup to finish")
			<-s.Stop().Done()
			return err
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "Cron expression overriding the configured schedule")
	cmd.Flags().StringVar(&listen, "listen", "", "Serve the status api on this address (overrides api.listen)")
	return cmd
}
