package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newScheduleCmd(opts *globalOptions) *cobra.Command {
	var (
		configPath  string
		cronSpec    string
		metricsAddr string
		once        bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run a batch from a run file on a cron schedule",
		Long: `schedule repeats the runs described by a YAML run file on a cron schedule
until interrupted. A tick that is still running when the next one is due is
skipped. With --metrics-addr the process serves Prometheus metrics on /metrics.`,
		Example: `  formulactl schedule --config runs.yaml --cron "0 */6 * * *" --metrics-addr :9090
  formulactl schedule --config runs.yaml --once`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := loadRunFile(configPath)
			if err != nil {
				return err
			}
			if cronSpec == "" {
				cronSpec = file.Schedule
			}
			logger, err := opts.logger(cmd)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			client, err := opts.newClient(cmd, reg)
			if err != nil {
				return err
			}
			defer client.Close()

			tick := func() {
				started := time.Now()
				result, err := runBatch(cmd, client, file)
				if err != nil {
					logger.Error("scheduled batch failed", slog.String("error", err.Error()))
					return
				}
				attrs := []any{slog.Int("runs", len(result.Runs)), slog.Duration("elapsed", time.Since(started))}
				if result.Invariants != nil {
					attrs = append(attrs, slog.String("invariant_set", result.Invariants.ID), slog.Int("invariants", len(result.Invariants.Invariants)))
				}
				logger.Info("scheduled batch finished", attrs...)
				if opts.jsonOutput {
					_ = writeJSON(cmd.OutOrStdout(), result)
				} else {
					printBatch(cmd.OutOrStdout(), result)
				}
			}
			if once {
				tick()
				return nil
			}

			if cronSpec == "" {
				return errors.New("a cron schedule is required (--cron or schedule in the run file)")
			}
			schedule, err := cron.ParseStandard(cronSpec)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				stop := serveMetrics(metricsAddr, reg, logger)
				defer stop()
			}
			return runScheduler(cmd.Context(), schedule, tick, logger)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML run file")
	cmd.Flags().StringVar(&cronSpec, "cron", "", "cron expression or descriptor such as @every 6h (overrides the run file)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&once, "once", false, "run a single batch immediately and exit")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// runScheduler blocks until ctx is done, then waits for a running tick.
func runScheduler(ctx context.Context, schedule cron.Schedule, tick func(), logger *slog.Logger) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(tick))
	c.Start()
	logger.Info("scheduler started", slog.Time("next", schedule.Next(time.Now())))

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
