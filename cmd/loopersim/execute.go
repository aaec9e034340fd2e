package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Swind/go-loopers/core"
	"github.com/Swind/go-loopers/internal/config"
	"github.com/Swind/go-loopers/internal/sim"
	obslogrus "github.com/Swind/go-loopers/observability/logrus"
	obsprom "github.com/Swind/go-loopers/observability/prometheus"
)

// loadConfig loads the file named by --config and applies command-line
// overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("reading --config: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := applyRunFlags(cfg, cmd); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyRunFlags copies the run command's flags onto cfg. Flags the command
// does not define are skipped, so the config command can share loadConfig.
func applyRunFlags(cfg *config.Config, cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Lookup("workers") == nil {
		return nil
	}

	workers, err := flags.GetInt("workers")
	if err != nil {
		return fmt.Errorf("reading --workers: %w", err)
	}
	if workers >= 0 {
		cfg.Runtime.Workers = workers
	}
	timers, err := flags.GetInt("timers")
	if err != nil {
		return fmt.Errorf("reading --timers: %w", err)
	}
	if timers >= 0 {
		cfg.Runtime.Timers = timers
	}
	noServant, err := flags.GetBool("no-servant")
	if err != nil {
		return fmt.Errorf("reading --no-servant: %w", err)
	}
	if noServant {
		cfg.Runtime.UseServant = false
	}
	noConfirm, err := flags.GetBool("no-confirm")
	if err != nil {
		return fmt.Errorf("reading --no-confirm: %w", err)
	}
	if noConfirm {
		cfg.Runtime.ConfirmQuit = false
	}
	addr, err := flags.GetString("metrics-addr")
	if err != nil {
		return fmt.Errorf("reading --metrics-addr: %w", err)
	}
	if addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = addr
	}
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// executeRun runs one simulated script and prints a per-loop summary.
func executeRun(ctx context.Context, cfg *config.Config, out io.Writer) error {
	base, err := obslogrus.NewStandard(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	logger := obslogrus.New(base).With(core.F("component", "loopersim"))

	opts := sim.Options{Logger: logger}

	var reg *prom.Registry
	var poller *obsprom.SnapshotPoller
	if cfg.Metrics.Enabled {
		reg = prom.NewRegistry()
		exporter, err := obsprom.NewMetricsExporter(cfg.Metrics.Namespace, reg, obsprom.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		poller, err = obsprom.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval.Duration)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		opts.Metrics = exporter
	}

	rt := sim.NewRuntime(cfg.Runtime, opts)

	if cfg.Metrics.Enabled {
		poller.AddCoordinator("runtime", rt.Coordinator())
		poller.Start(ctx)
		defer func() {
			poller.Stop()
			poller.CollectOnce()
		}()

		server := startMetricsServer(cfg.Metrics.Addr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	res, runErr := rt.Run(ctx)
	if res != nil {
		writeSummary(out, res)
	}
	if errors.Is(runErr, core.ErrInterrupted) {
		logger.Warn("runtime interrupted")
	}
	return runErr
}

func startMetricsServer(addr string, reg *prom.Registry, logger core.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", core.F("addr", addr), core.F("error", err))
		}
	}()
	logger.Info("metrics endpoint up", core.F("url", "http://"+addr+"/metrics"))
	return server
}

func writeSummary(w io.Writer, res *sim.Result) {
	fmt.Fprintf(w, "interrupted=%t workers=%d timers=%d servant_calls=%d main_tasks=%d\n",
		res.Interrupted, res.WorkersRun, res.TimersFired, res.ServantCalls, res.MainProcessed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOOP\tROLE\tPROCESSED\tREJECTED\tIDLE\tWAIT_WHEN_IDLE")
	for _, s := range res.FinalStats {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%t\n",
			s.Name, s.Role, s.Processed, s.Rejected, s.IdleRuns, s.WaitWhenIdle)
	}
	_ = tw.Flush()
}
