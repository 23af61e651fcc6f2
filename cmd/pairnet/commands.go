package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pairnet/internal/api"
	"pairnet/internal/config"
	"pairnet/internal/scheduler"
	"pairnet/internal/session"
	"pairnet/internal/storage/migrations"
	pgstore "pairnet/internal/storage/postgres"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the classification scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			n, cleanup, err := a.newNetwork(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			server := api.New(api.Options{Network: n, Logger: &a.logger})
			runner := scheduler.New(scheduler.Options{
				Classifier: n,
				Interval:   a.cfg.ClassifyInterval,
				Logger:     &a.logger,
			})

			a.logger.Info().
				Str("storage", a.cfg.Storage).
				Str("checkpoints", a.cfg.Checkpoints).
				Str("timezone", a.cfg.Timezone).
				Msg("pairnet starting")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.ListenAndServe(gctx, a.cfg.HTTPAddr) })
			g.Go(func() error { return runner.Run(gctx) })

			err = g.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			a.logger.Info().Msg("shutdown complete")
			return nil
		},
	}
	cmd.Flags().String("http-addr", "", "HTTP listen address")
	cmd.Flags().Duration("interval", 0, "classification sweep interval")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded PostgreSQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Storage != config.StoragePostgres {
				return fmt.Errorf("migrate requires postgres storage, got %q", a.cfg.Storage)
			}

			pool, err := pgstore.NewPool(cmd.Context(), a.cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.RunPostgresMigrations(cmd.Context(), pool)
			for _, file := range applied {
				a.logger.Info().Str("file", file).Msg("migration applied")
			}
			if err != nil {
				return err
			}
			a.logger.Info().Int("applied", len(applied)).Msg("migrations complete")
			return nil
		},
	}
}

func (a *app) sessionCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Print the current and next session windows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schedule, err := a.cfg.Schedule()
			if err != nil {
				return err
			}
			clock := session.NewClock(schedule)

			now := time.Now().In(schedule.Location())
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				now = now.In(schedule.Location())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "now      %s\n", now.Format(time.RFC3339))
			if w, err := clock.Current(now); err == nil {
				fmt.Fprintln(out, formatWindow("current", w.Index, w.Start, w.End, w.Remaining))
			} else {
				fmt.Fprintln(out, "current  none")
			}
			next := clock.Next(now)
			fmt.Fprintln(out, formatWindow("next", next.Index, next.Start, next.End, next.Remaining))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC3339 time instead of now")
	return cmd
}

func (a *app) classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Run one classification sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, cleanup, err := a.newNetwork(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			runner := scheduler.New(scheduler.Options{Classifier: n, Logger: &a.logger})
			res, err := runner.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "participants=%d windows=%d pairs=%d failed=%d duration=%s\n",
				res.Participants, res.Windows, res.Pairs, res.Failed, res.Duration)
			return nil
		},
	}
}
