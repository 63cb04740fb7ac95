// flowc compiles Flow documents.
//
// Usage:
//
//	flowc [--config flow.hcl] [--log-level LEVEL] <command> [flags]
//
// Commands:
//
//	compile   render a file's @out node
//	validate  report every error in one or more files
//	graph     export the dependency graph
//	tokens    dump tokens, nodes and symbols of a file
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"flowc/pkg/compiler"
	"flowc/pkg/config"
	"flowc/pkg/ctxlog"
	"flowc/pkg/metrics"
)

// version is set with -ldflags at build time.
var version = "dev"

// errProblems is returned after diagnostics have already been printed.
var errProblems = errors.New("problems found")

type app struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string

	cfg     *config.Config
	metrics *metrics.Prometheus

	stdout io.Writer
	stderr io.Writer
	diag   *diagPrinter
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, diag: newDiagPrinter(stderr)}
}

// setup loads the config, applies flag overrides and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.File = a.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	level, _ := cfg.Log.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(a.stderr, opts)
	} else {
		handler = slog.NewTextHandler(a.stderr, opts)
	}
	logger := slog.New(handler).With("run_id", uuid.NewString())
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(ctxlog.WithLogger(ctx, logger))

	a.metrics = metrics.NewPrometheus()
	return nil
}

// finish writes the metrics file when one is configured.
func (a *app) finish(cmd *cobra.Command) error {
	if a.cfg == nil || a.cfg.Metrics.File == "" {
		return nil
	}
	path := a.cfg.Path(a.cfg.Metrics.File)
	if err := a.metrics.WriteFile(path); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	ctxlog.FromContext(cmd.Context()).Debug("metrics written", "path", path)
	return nil
}

func (a *app) controller(ctx context.Context) *compiler.Controller {
	mode, _ := compiler.ParseMode(a.cfg.Mode)
	return &compiler.Controller{
		Logger:   ctxlog.FromContext(ctx),
		Mode:     mode,
		Library:  a.cfg.Library,
		Tolerant: a.cfg.Tolerant,
		Metrics:  a.metrics,
	}
}

// inputs returns args, or the configured entry file when there are none.
func (a *app) inputs(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if a.cfg.Entry != "" {
		return []string{a.cfg.Path(a.cfg.Entry)}, nil
	}
	return nil, errors.New("no input file: pass FILE or set entry in " + config.DefaultFile)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowc",
		Short:         "Compile Flow documents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.finish(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "project file (default "+config.DefaultFile+" when present)")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write compile metrics to this file")

	root.AddCommand(
		a.compileCmd(),
		a.validateCmd(),
		a.graphCmd(),
		a.tokensCmd(),
	)
	return root
}

// run executes the command line and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errProblems) {
			a.diag.Error(err)
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(newApp(os.Stdout, os.Stderr).run(context.Background(), os.Args[1:]))
}
