package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/livinlefevreloca/healthsync/internal/config"
	"github.com/livinlefevreloca/healthsync/internal/db"
	"github.com/livinlefevreloca/healthsync/internal/export"
	"github.com/livinlefevreloca/healthsync/internal/health"
	"github.com/livinlefevreloca/healthsync/internal/loader"
	"github.com/livinlefevreloca/healthsync/internal/metrics"
	"github.com/livinlefevreloca/healthsync/internal/pipeline"
	"github.com/livinlefevreloca/healthsync/internal/watermark"
)

// Exit codes by failure class
const (
	exitOK           = 0
	exitFailure      = 1
	exitConfig       = 2
	exitSource       = 3
	exitFormat       = 4
	exitConnectivity = 5
	exitWrite        = 6
)

const metricsExportTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// run executes one load and returns the process exit code. Deferred cleanup
// runs before main exits.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	// Parse command-line flags
	fs := flag.NewFlagSet("healthsync", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configFile := fs.String("config", "config.toml", "Path to configuration file (TOML, or JSON when named *.json)")
	dryRun := fs.Bool("dry-run", false, "Parse the export and report what would be inserted without writing")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: healthsync [-config path] [-dry-run] [export-path]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return exitConfig
	}

	exportPath := export.DefaultPath
	if fs.NArg() == 1 {
		exportPath = fs.Arg(0)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger := newLogger(stdout, config.DefaultConfig().Logging)
		logger.Error("failed to load configuration", "config_file", *configFile, "error", err)
		return exitCode(err)
	}

	logger := newLogger(stdout, cfg.Logging).With("run_id", uuid.NewString())
	slog.SetDefault(logger)

	logger.Info("starting healthsync",
		"config_file", *configFile,
		"export", exportPath,
		"driver", cfg.DB.Driver,
		"batch_size", cfg.Load.BatchSize,
		"dry_run", *dryRun)

	runMetrics := metrics.NewRun()
	err = load(ctx, cfg, exportPath, *dryRun, logger, runMetrics)
	if err == nil {
		runMetrics.MarkSuccess(time.Now())
	}

	if cfg.Metrics.Enabled() {
		exportCtx, cancel := context.WithTimeout(context.Background(), metricsExportTimeout)
		if exportErr := runMetrics.Export(exportCtx, cfg.Metrics); exportErr != nil {
			logger.Warn("failed to export run metrics", "error", exportErr)
		}
		cancel()
	}

	if err != nil {
		logger.Error("healthsync failed", "error", err)
		return exitCode(err)
	}
	return exitOK
}

func load(ctx context.Context, cfg *config.Config, exportPath string, dryRun bool, logger *slog.Logger, runMetrics *metrics.Run) error {
	// Open database connection
	logger.Info("connecting to database", "driver", cfg.DB.Driver)
	database, err := db.OpenWithConfig(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close()

	var sink loader.Sink = database
	if dryRun {
		sink = loader.DiscardSink{}
	}

	writer, err := loader.NewWriter(sink, cfg.Load, logger, runMetrics)
	if err != nil {
		return fmt.Errorf("%w: %w", health.ErrConfig, err)
	}

	p := pipeline.New(
		watermark.NewResolver(database, logger),
		writer,
		health.DefaultTypeMap(),
		logger,
		runMetrics,
	)

	result, err := p.Run(ctx, exportPath)
	if err != nil {
		return err
	}

	if dryRun {
		logger.Info("dry run complete, nothing was written", "would_insert", result.Summary.Records)
	} else {
		logger.Info("healthsync finished", "inserted", result.Summary.Rows, "batches", result.Summary.Batches)
	}
	return nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, health.ErrConfig):
		return exitConfig
	case errors.Is(err, health.ErrSourceResolution):
		return exitSource
	case errors.Is(err, health.ErrFormat):
		return exitFormat
	case errors.Is(err, health.ErrSinkConnectivity):
		return exitConnectivity
	case errors.Is(err, health.ErrSinkWrite):
		return exitWrite
	default:
		return exitFailure
	}
}
