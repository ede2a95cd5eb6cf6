package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/cstm/pkg/compression"
	"github.com/ajitpratap0/cstm/pkg/config"
	"github.com/ajitpratap0/cstm/pkg/cstm"
	"github.com/ajitpratap0/cstm/pkg/csvio"
	"github.com/ajitpratap0/cstm/pkg/logger"
	"github.com/ajitpratap0/cstm/pkg/metrics"
	"github.com/ajitpratap0/cstm/pkg/observability"
)

var version = "0.1.0"

// app holds the state shared by every subcommand.
type app struct {
	configPath  string
	logLevel    string
	metricsFile string
	trace       bool
	mmap        bool

	cfg             *config.Config
	log             *zap.Logger
	shutdownTracing func(context.Context) error
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// usageError marks a command line the user got wrong: bad flags, wrong
// argument count or an unknown subcommand. These exit with status 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func exitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		return 2
	case strings.HasPrefix(err.Error(), "unknown command"):
		// cobra reports unknown subcommands as a plain error
		return 2
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "cstm",
		Short: "CSTM - single-file columnar storage",
		Long: `cstm converts between CSV and the CSTM columnar format, inspects CSTM
files and benchmarks selective column reads against a CSV scan.`,
		SilenceUsage:       true,
		PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return a.setup() },
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return a.teardown(cmd.Context()) },
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the configuration")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when the command finishes")
	flags.BoolVar(&a.trace, "trace", false, "Export OpenTelemetry spans to stderr")
	flags.BoolVar(&a.mmap, "mmap", false, "Memory-map CSTM files when reading")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cstm v%s\n", version)
			fmt.Fprintf(out, "Format version: %d\n", cstm.Version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(
		newFromCSVCmd(a),
		newToCSVCmd(a),
		newToJSONCmd(a),
		newInspectCmd(a),
		newBenchCmd(a),
		newGenCSVCmd(a),
	)
	return root
}

// setup loads configuration and installs the logger and tracer.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsFile != "" {
		cfg.Metrics.TextfilePath = a.metricsFile
	}
	if a.trace {
		cfg.Tracing.Enabled = true
	}
	if a.mmap {
		cfg.Reader.Mmap = true
	}
	a.cfg = cfg

	l, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	logger.Set(l)
	a.log = l

	if cfg.Tracing.Enabled {
		tcfg := observability.DefaultTracingConfig()
		tcfg.ServiceVersion = version
		tcfg.SamplingRate = cfg.Tracing.SamplingRate
		tcfg.PrettyPrint = cfg.Tracing.PrettyPrint
		shutdown, err := observability.InitTracing(tcfg)
		if err != nil {
			return err
		}
		a.shutdownTracing = shutdown
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}
	if a.cfg != nil && a.cfg.Metrics.TextfilePath != "" {
		if err := metrics.WriteTextfile(a.cfg.Metrics.TextfilePath); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	_ = a.log.Sync()
	return nil
}

func (a *app) csvOptions() csvio.Options {
	return csvio.Options{
		Delimiter:        a.cfg.Delimiter(),
		NullToken:        a.cfg.CSV.NullToken,
		DisableInference: !a.cfg.CSV.InferTypes,
	}
}

func (a *app) writerOptions(level string) ([]cstm.Option, error) {
	if level == "" {
		level = a.cfg.Writer.CompressionLevel
	}
	lvl, err := compression.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := []cstm.Option{
		cstm.WithLogger(a.log),
		cstm.WithCompressionLevel(lvl),
		cstm.WithConcurrency(a.cfg.Writer.Concurrency),
	}
	if a.cfg.Writer.SchemaSignature {
		opts = append(opts, cstm.WithAutoSchemaSignature())
	}
	return opts, nil
}

// open opens a CSTM file with the configured reader options and, when
// enabled, checks the stored schema signature against the header.
func (a *app) open(path string) (*cstm.Reader, error) {
	opts := []cstm.Option{
		cstm.WithLogger(a.log),
		cstm.WithConcurrency(a.cfg.Reader.Concurrency),
	}
	if a.cfg.Reader.Mmap {
		opts = append(opts, cstm.WithMmap())
	}
	r, err := cstm.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if a.cfg.Reader.VerifySignature {
		if err := r.VerifySignature(cstm.HeaderSignature(r.Header())); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}
