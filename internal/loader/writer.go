// Package loader writes the record stream to the sink in fixed-size
// transactional batches.
package loader

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/livinlefevreloca/healthsync/internal/health"
)

// Sink persists one batch of records in a single transaction and returns the
// number of rows it inserted.
type Sink interface {
	InsertRecords(ctx context.Context, records []health.Record) (int64, error)
}

// Observer is notified after every committed batch
type Observer interface {
	ObserveBatch(rows int64, elapsed time.Duration)
}

// Summary describes what a Write committed
type Summary struct {
	Batches int
	Records int
	Rows    int64
}

// Writer drains a record sequence into a Sink
type Writer struct {
	sink     Sink
	config   Config
	logger   *slog.Logger
	observer Observer
}

// NewWriter creates a writer. observer may be nil.
func NewWriter(sink Sink, config Config, logger *slog.Logger, observer Observer) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Writer{
		sink:     sink,
		config:   config,
		logger:   logger,
		observer: observer,
	}, nil
}

// Write consumes records and inserts them batch by batch. It stops at the
// first error from either the sequence or the sink; batches committed before
// that point remain committed and are reflected in the returned Summary.
func (w *Writer) Write(ctx context.Context, records iter.Seq2[health.Record, error]) (Summary, error) {
	var summary Summary

	for batch, err := range Batches(records, w.config.BatchSize) {
		if err != nil {
			return summary, err
		}

		start := time.Now()
		rows, err := w.sink.InsertRecords(ctx, batch)
		if err != nil {
			w.logger.Error("batch rejected",
				"batch", summary.Batches+1,
				"records", len(batch),
				"error", err)
			return summary, err
		}
		elapsed := time.Since(start)

		summary.Batches++
		summary.Records += len(batch)
		summary.Rows += rows

		if w.observer != nil {
			w.observer.ObserveBatch(rows, elapsed)
		}

		w.logger.Info("records inserted",
			"batch", summary.Batches,
			"rows", rows,
			"elapsed", elapsed)
	}

	return summary, nil
}

// DiscardSink accepts every batch without writing it. Used for dry runs.
type DiscardSink struct{}

// InsertRecords reports every record as inserted
func (DiscardSink) InsertRecords(_ context.Context, records []health.Record) (int64, error) {
	return int64(len(records)), nil
}
