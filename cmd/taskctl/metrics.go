package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"taskctl/internal/metrics"
)

func newMetricsCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect or serve the ops.metrics.jsonl event stream",
	}
	cmd.AddCommand(newMetricsServeCommand(flags))
	cmd.AddCommand(newMetricsReportCommand(flags))
	return cmd
}

func newMetricsServeCommand(flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the live Prometheus registry over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags.stateDir, flags.configDir)
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
			server := &http.Server{Addr: addr, Handler: mux}

			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", gray("metrics listening on"), addr)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sig:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(ctx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address for the /metrics endpoint")
	return cmd
}

func newMetricsReportCommand(flags *rootFlags) *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the windowed aggregation over ops.metrics.jsonl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags.stateDir, flags.configDir)
			if err != nil {
				return err
			}
			events, err := app.Metrics.ReadEvents()
			if err != nil {
				return err
			}
			agg := metrics.Aggregate(events, windowDays, time.Now().UTC())
			enc, err := json.MarshalIndent(agg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(enc))
			return nil
		},
	}
	cmd.Flags().IntVar(&windowDays, "window-days", 7, "Aggregation window in days")
	return cmd
}
