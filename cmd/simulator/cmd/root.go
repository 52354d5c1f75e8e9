package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/carbonsched/carbonsched/internal/common/logging"
	"github.com/carbonsched/carbonsched/internal/common/schedcontext"
	"github.com/carbonsched/carbonsched/internal/scheduler/metrics"
	"github.com/carbonsched/carbonsched/internal/scheduler/simulator"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Simulate placing workflows on a cluster under a carbon-intensity trace.",
		RunE:  runSimulations,
	}
	cmd.Flags().String("clusters", "", "Glob pattern specifying cluster specs to simulate.")
	cmd.Flags().String("workloads", "", "Glob pattern specifying workload specs to simulate.")
	cmd.Flags().String("carbon", "", "Glob pattern specifying carbon-intensity traces. If empty, no trace is used.")
	cmd.Flags().String("configs", "", "Glob pattern specifying scheduler configurations to simulate.")
	cmd.Flags().String("logLevel", "info", "Log level, e.g., debug or info.")
	cmd.Flags().String("logFormat", logging.FormatText, "Log format; one of text, json or cli.")
	cmd.Flags().Duration("schedulePeriod", simulator.DefaultSchedulePeriod, "Simulated time between scheduling passes.")
	cmd.Flags().Duration("maxIdle", simulator.DefaultMaxIdle, "Stop a simulation once no task has run for this long.")
	cmd.Flags().Duration("hardTermination", 0, "Stop a simulation after this much simulated time. Disabled if 0.")
	cmd.Flags().String("metricsFile", "", "If set, write scheduler metrics to this file in the Prometheus text format.")
	for _, name := range []string{"clusters", "workloads", "configs"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runSimulations(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	clusterPattern, err := flags.GetString("clusters")
	if err != nil {
		return err
	}
	workloadPattern, err := flags.GetString("workloads")
	if err != nil {
		return err
	}
	carbonPattern, err := flags.GetString("carbon")
	if err != nil {
		return err
	}
	configPattern, err := flags.GetString("configs")
	if err != nil {
		return err
	}
	logLevel, err := flags.GetString("logLevel")
	if err != nil {
		return err
	}
	logFormat, err := flags.GetString("logFormat")
	if err != nil {
		return err
	}
	var options simulator.Options
	if options.SchedulePeriod, err = flags.GetDuration("schedulePeriod"); err != nil {
		return err
	}
	if options.MaxIdle, err = flags.GetDuration("maxIdle"); err != nil {
		return err
	}
	if options.HardTermination, err = flags.GetDuration("hardTermination"); err != nil {
		return err
	}
	metricsFile, err := flags.GetString("metricsFile")
	if err != nil {
		return err
	}

	if err := logging.ConfigureLogging(logLevel, logFormat); err != nil {
		return err
	}
	m := metrics.New()
	registry := prometheus.NewRegistry()
	if err := registry.Register(m); err != nil {
		return errors.WithStack(err)
	}

	ctx, cancel := withShutdown(schedcontext.Background())
	defer cancel()
	ctx.Info("Carbon-aware scheduling simulator")
	summaries, err := simulator.Simulate(ctx, clusterPattern, workloadPattern, carbonPattern, configPattern, m, options)
	if err != nil {
		return err
	}
	for _, summary := range summaries {
		ctx.Infof("Simulation result: %s", summary)
	}

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, registry); err != nil {
			return errors.WithStack(err)
		}
		ctx.Infof("Wrote metrics to %s", metricsFile)
	}
	return nil
}

// withShutdown returns a copy of parent that is cancelled on SIGINT or SIGTERM.
func withShutdown(parent *schedcontext.Context) (*schedcontext.Context, func()) {
	ctx, cancel := schedcontext.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			ctx.Warn("Interrupted; stopping simulations")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(signals)
		cancel()
	}
}
