package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/internal/logger"
	"github.com/williampepple1/listing-notifier/internal/scheduler"
	"github.com/williampepple1/listing-notifier/internal/server"
)

var configFile string

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		if config.IsConfigError(err) {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the listing page until interrupted",
		Long: `Check the listing page on a fixed interval and send a notification for
every new posting that matches a keyword. Serves /health, /status, /check
and /metrics while running. Stops on SIGINT or SIGTERM.`,
		RunE: runTracker,
	}

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single check and print its report",
		RunE:  runOnce,
	}

	root := &cobra.Command{
		Use:           "notifier",
		Short:         "Watch a classifieds page and notify on matching postings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTracker,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file (YAML)")
	root.AddCommand(runCmd, onceCmd)
	return root
}

func runTracker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	a.log.Info("Job tracker starting",
		logger.String("url", cfg.Scraper.ListingURL),
		logger.Strings("keywords", cfg.Keywords),
		logger.Duration("interval", cfg.Schedule.Interval),
		logger.String("dedup_backend", cfg.Dedup.Backend),
	)

	if cfg.Notifier.SendStartup {
		if err := a.webhook.SendStartup(ctx, cfg.Keywords, cfg.Schedule.Interval); err != nil {
			a.log.Warn("Failed to send startup notification", logger.Error(err))
		}
	}

	sched := scheduler.New(a.tracker, cfg.Schedule.Interval, cfg.Schedule.RunOnStart, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if cfg.Server.Enabled {
		srv := server.New(server.Options{
			Address:              cfg.Server.Address,
			Interval:             cfg.Schedule.Interval,
			NotificationsEnabled: true,
			Status:               a.tracker,
			Checker:              sched,
			Metrics:              a.metrics,
			Logger:               a.log,
		})
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("Job tracker stopped")
	return nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configFile)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.tracker.RunOnce(ctx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Err != "" {
		return fmt.Errorf("check failed: %s", report.Err)
	}
	return nil
}
