package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/manet-sim/core"
	"github.com/signalsfoundry/manet-sim/internal/logging"
	"github.com/signalsfoundry/manet-sim/internal/observability"
	"github.com/signalsfoundry/manet-sim/timectrl"
)

// Config holds the command-line settings. Zero values keep whatever the
// scenario says.
type Config struct {
	ScenarioPath   string
	StopTime       float64
	Range          float64
	Oracle         string
	MaxHops        int
	Monitor        bool
	MonitorOut     string
	MetricsAddress string
	RealTime       bool
	Speed          float64

	// Tracing comes from the environment, not flags.
	Tracing observability.TracingConfig
}

func parseFlags(args []string, stderr io.Writer) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.ScenarioPath, "scenario", "", "YAML or JSON scenario file (default: built-in OBSS scenario)")
	fs.Float64Var(&cfg.StopTime, "stop", 0, "simulation stop time in seconds (overrides the scenario)")
	fs.Float64Var(&cfg.Range, "range", 0, "radio range in metres (overrides the scenario)")
	fs.StringVar(&cfg.Oracle, "oracle", "", "reachability: direct or relay (overrides the scenario)")
	fs.IntVar(&cfg.MaxHops, "max-hops", 0, "hop limit for -oracle relay (0 = unbounded)")
	fs.BoolVar(&cfg.Monitor, "monitor", false, "write per-flow statistics after the run")
	fs.StringVar(&cfg.MonitorOut, "monitor-out", "", "flow statistics file (default <scenario>.flowmon.json)")
	fs.StringVar(&cfg.MetricsAddress, "metrics-addr", "", "HTTP address for Prometheus /metrics (disabled when empty)")
	fs.BoolVar(&cfg.RealTime, "realtime", false, "pace events against the wall clock")
	fs.Float64Var(&cfg.Speed, "speed", 1, "simulated seconds per wall-clock second with -realtime")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg.Tracing = observability.TracingConfigFromEnv()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		stop()
		os.Exit(1)
	}
}

// run executes one simulation and prints the reception log to stdout.
func run(ctx context.Context, cfg Config, log logging.Logger, stdout io.Writer) error {
	sc, err := loadScenario(cfg)
	if err != nil {
		return err
	}

	tracing := cfg.Tracing
	tracing.Scenario, tracing.StopTime = sc.Name, sc.StopTime
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	if cfg.MetricsAddress != "" {
		srv := serveMetrics(cfg.MetricsAddress, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	opts := []core.Option{
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
	}
	if cfg.RealTime {
		opts = append(opts, core.WithPacer(timectrl.NewPacer(timectrl.RealTime, cfg.Speed)))
	}

	engine, err := core.NewSimulationEngine(sc, opts...)
	if err != nil {
		return err
	}
	res, err := engine.Run(ctx)
	if res != nil {
		if werr := res.WriteTSV(stdout); werr != nil && err == nil {
			err = fmt.Errorf("write reception log: %w", werr)
		}
	}
	if err != nil {
		return err
	}

	if cfg.Monitor {
		path := cfg.MonitorOut
		if path == "" {
			path = sc.Name + ".flowmon.json"
		}
		if err := writeMonitor(path, res); err != nil {
			return err
		}
		log.Info(ctx, "flow statistics written", logging.String("path", path))
	}
	return nil
}

func loadScenario(cfg Config) (core.Scenario, error) {
	sc := core.DefaultScenario()
	if cfg.ScenarioPath != "" {
		loaded, err := core.LoadScenarioFile(cfg.ScenarioPath)
		if err != nil {
			return core.Scenario{}, err
		}
		sc = loaded
	}
	if cfg.StopTime != 0 {
		sc.StopTime = cfg.StopTime
	}
	if cfg.Range != 0 {
		sc.Range = cfg.Range
	}
	if cfg.Oracle != "" {
		sc.Routing = core.RoutingMode(cfg.Oracle)
	}
	if cfg.MaxHops != 0 {
		sc.MaxHops = cfg.MaxHops
	}
	return sc, nil
}

func writeMonitor(path string, res *core.Results) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("flow statistics: %w", err)
	}
	if err := res.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("flow statistics: %w", err)
	}
	return f.Close()
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
