// Package watermark derives the incremental-load cutoff from the data
// already stored in the sink.
package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Epoch is the cutoff used when the sink holds no rows
var Epoch = time.Unix(0, 0).UTC()

// Store reports the latest datetime recorded in the sink. The second result
// is false when nothing has been recorded yet.
type Store interface {
	MaxRecordedAt(ctx context.Context) (time.Time, bool, error)
}

// Resolver computes the cutoff for a run
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a resolver reading from store
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// Resolve returns the high-water mark as a UTC instant, or Epoch for an
// empty sink. Store errors are returned as is; the caller decides whether
// the run can continue.
func (r *Resolver) Resolve(ctx context.Context) (time.Time, error) {
	max, ok, err := r.store.MaxRecordedAt(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve cutoff: %w", err)
	}

	if !ok {
		r.logger.Debug("sink is empty, loading from epoch")
		return Epoch, nil
	}

	cutoff := AsUTC(max)
	r.logger.Debug("resolved cutoff", "stored", max, "cutoff", cutoff)
	return cutoff, nil
}

// AsUTC keeps the wall clock of t and replaces its location with UTC. The
// sink stores UTC wall-clock values without a zone, so a driver that decodes
// them in a local zone still yields the instant that was written.
func AsUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
