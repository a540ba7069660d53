package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/contactsim/contactsim/sim/engine"
	"github.com/contactsim/contactsim/sim/telemetry"
	"github.com/contactsim/contactsim/sim/trace"
)

var (
	// CLI flags for the run command
	configPath  string // Experiment YAML
	seed        int64  // Master seed; overrides the YAML seed when set
	logLevel    string // Log verbosity level
	traceLevel  string // Decision trace level
	metricsAddr string // Prometheus listen address, empty disables
	parallel    int    // Concurrent replications; overrides the YAML value when set
	resultsPath string // JSON results file, empty disables
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "contactsim",
	Short: "Replicated discrete-event simulator for blended contact centers",
}

// runOptions carries the CLI overrides applied on top of an experiment bundle.
type runOptions struct {
	ConfigPath  string
	Seed        *int64
	Parallel    *int
	TraceLevel  string
	ResultsPath string
	Metrics     *telemetry.Metrics
}

// runCmd executes the experiment described by --config
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a replicated contact-center experiment",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}

		opts := optionsFromFlags(cmd.Flags())
		if metricsAddr != "" {
			opts.Metrics = telemetry.New()
			serveMetrics(metricsAddr, opts.Metrics)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := runExperiment(ctx, opts, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Experiment complete.")
	},
}

// validateCmd checks an experiment file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an experiment configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if err := validateExperiment(configPath, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// optionsFromFlags collects the run options; seed and parallel override the
// bundle only when set explicitly.
func optionsFromFlags(flags *pflag.FlagSet) runOptions {
	opts := runOptions{ConfigPath: configPath, TraceLevel: traceLevel, ResultsPath: resultsPath}
	if flags.Changed("seed") {
		opts.Seed = &seed
	}
	if flags.Changed("parallel") {
		opts.Parallel = &parallel
	}
	return opts
}

// runExperiment loads the bundle, applies overrides and runs it to completion.
func runExperiment(ctx context.Context, opts runOptions, out io.Writer) error {
	b, err := engine.LoadExperimentBundle(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfg, err := experimentConfig(b, opts)
	if err != nil {
		return err
	}
	logrus.Infof("Starting experiment: %d inbound, %d outbound types, %d groups, seed=%d",
		len(cfg.Model.Inbound), len(cfg.Model.Outbound), len(cfg.Model.Groups), cfg.Seed)

	exp, err := engine.NewExperiment(cfg)
	if err != nil {
		return err
	}
	summary, err := exp.Run(ctx)
	if err != nil {
		return err
	}

	report := newReport(summary, exp.Registry(), trace.Summarize(exp.Trace()))
	report.Print(out)
	if opts.ResultsPath != "" {
		if err := report.Save(opts.ResultsPath); err != nil {
			return err
		}
		logrus.Infof("Results written to %s", opts.ResultsPath)
	}
	return nil
}

// experimentConfig converts a validated bundle into an engine configuration.
func experimentConfig(b *engine.ExperimentBundle, opts runOptions) (engine.ExperimentConfig, error) {
	if err := b.Validate(); err != nil {
		return engine.ExperimentConfig{}, err
	}
	model, err := b.BuildModel()
	if err != nil {
		return engine.ExperimentConfig{}, err
	}
	cond, err := b.BuildCondition()
	if err != nil {
		return engine.ExperimentConfig{}, err
	}
	measures, err := b.CollectedMeasures()
	if err != nil {
		return engine.ExperimentConfig{}, err
	}

	cfg := engine.ExperimentConfig{
		Model:               model,
		Measures:            measures,
		InitialReplications: b.Replications.Initial,
		MaxReplications:     b.Replications.Max,
		Parallelism:         b.Replications.Parallel,
		Stopping:            cond,
		Trace:               trace.TraceConfig{Level: trace.TraceLevel(opts.TraceLevel)},
		Metrics:             opts.Metrics,
	}
	if b.Seed != nil {
		cfg.Seed = *b.Seed
	}
	if opts.Seed != nil {
		cfg.Seed = *opts.Seed
	}
	if opts.Parallel != nil {
		cfg.Parallelism = *opts.Parallel
	}
	return cfg, nil
}

func validateExperiment(path string, out io.Writer) error {
	b, err := engine.LoadExperimentBundle(path)
	if err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	m, err := b.BuildModel()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s: ok (%d inbound, %d outbound, %d groups, %d periods)\n",
		path, len(m.Inbound), len(m.Outbound), len(m.Groups), m.Periods)
	return err
}

// serveMetrics exposes m on addr/metrics in the background.
func serveMetrics(addr string, m *telemetry.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics server: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on %s/metrics", addr)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Experiment YAML file")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Master seed (overrides the YAML seed)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&traceLevel, "trace", string(trace.TraceLevelNone), "Decision trace level (none, decisions, dials)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().IntVar(&parallel, "parallel", 1, "Concurrent replications (overrides the YAML value)")
	runCmd.Flags().StringVar(&resultsPath, "results-path", "", "Write JSON results to this file")
	_ = runCmd.MarkFlagRequired("config")

	validateCmd.Flags().StringVar(&configPath, "config", "", "Experiment YAML file")
	_ = validateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
