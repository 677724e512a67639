// Package pipeline runs one incremental load: resolve the cutoff, stream the
// export, and write the newer records to the sink.
package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/livinlefevreloca/healthsync/internal/export"
	"github.com/livinlefevreloca/healthsync/internal/health"
	"github.com/livinlefevreloca/healthsync/internal/loader"
)

// CutoffResolver returns the instant after which records are loaded
type CutoffResolver interface {
	Resolve(ctx context.Context) (time.Time, error)
}

// RecordWriter persists a record sequence
type RecordWriter interface {
	Write(ctx context.Context, records iter.Seq2[health.Record, error]) (loader.Summary, error)
}

// Recorder receives run-level measurements. metrics.Run implements it.
type Recorder interface {
	SetCutoff(cutoff time.Time)
	ObserveParse(stats export.Stats)
}

// Result describes a finished (or aborted) run
type Result struct {
	Cutoff  time.Time
	Source  string
	Mode    export.Mode
	Summary loader.Summary
	Parse   export.Stats
}

// Pipeline wires the stages of a load together. Stages run sequentially on
// the calling goroutine.
type Pipeline struct {
	resolver CutoffResolver
	writer   RecordWriter
	types    health.TypeMap
	logger   *slog.Logger
	recorder Recorder
}

// New creates a pipeline. recorder may be nil.
func New(resolver CutoffResolver, writer RecordWriter, types health.TypeMap, logger *slog.Logger, recorder Recorder) *Pipeline {
	return &Pipeline{
		resolver: resolver,
		writer:   writer,
		types:    types,
		logger:   logger,
		recorder: recorder,
	}
}

// Run loads every record of the export at exportPath that is newer than the
// sink's high-water mark. The returned Result is filled in as far as the
// run got, also when an error is returned.
func (p *Pipeline) Run(ctx context.Context, exportPath string) (Result, error) {
	var result Result

	cutoff, err := p.resolver.Resolve(ctx)
	if err != nil {
		return result, err
	}
	result.Cutoff = cutoff
	if p.recorder != nil {
		p.recorder.SetCutoff(cutoff)
	}
	p.logger.Info("resolved cutoff", "cutoff", cutoff.Format(time.RFC3339))

	source, err := export.Open(exportPath)
	if err != nil {
		return result, err
	}
	defer source.Close()

	result.Source = source.Path
	result.Mode = source.Mode
	p.logger.Info("opened export", "path", source.Path, "mode", source.Mode)

	parser := export.NewParser(source, p.types)
	summary, err := p.writer.Write(ctx, parser.Records(cutoff))

	result.Summary = summary
	result.Parse = parser.Stats()
	if p.recorder != nil {
		p.recorder.ObserveParse(result.Parse)
	}

	if err != nil {
		p.logger.Error("load aborted",
			"batches", summary.Batches,
			"rows", summary.Rows,
			"error", err)
		return result, err
	}

	p.logger.Info("load complete",
		"batches", summary.Batches,
		"rows", summary.Rows,
		"seen", result.Parse.Seen,
		"stale", result.Parse.Stale,
		"unrecognized", result.Parse.Unrecognized)

	return result, nil
}
