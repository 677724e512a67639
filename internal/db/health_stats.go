package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/livinlefevreloca/healthsync/internal/health"
)

// MaxRecordedAt returns the latest datetime stored in health_stats. The
// second result is false when the table is empty. The returned time carries
// whatever location the driver decoded it with.
func (db *DB) MaxRecordedAt(ctx context.Context) (time.Time, bool, error) {
	query := "SELECT max(datetime) FROM health_stats"

	var raw any
	if err := db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return time.Time{}, false, classify(err, health.ErrSinkConnectivity, "query high-water mark")
	}

	if raw == nil {
		return time.Time{}, false, nil
	}

	ts, err := decodeTimestamp(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: decode high-water mark: %w", health.ErrSinkConnectivity, err)
	}
	return ts, true, nil
}

// InsertRecords writes records with a single multi-row insert inside one
// transaction and returns the rows affected reported by the driver
func (db *DB) InsertRecords(ctx context.Context, records []health.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := insertRecordsQuery(db.driver, len(records))
	args := make([]any, 0, len(records)*3)
	for _, r := range records {
		args = append(args, string(r.Type), r.Timestamp.UTC(), r.Value)
	}

	var rows int64
	err := db.WithTransaction(ctx, func(tx *Tx) error {
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, classify(err, health.ErrSinkWrite, fmt.Sprintf("insert %d records", len(records)))
	}

	return rows, nil
}

func insertRecordsQuery(driver string, n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO health_stats (type, datetime, value) VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		p := i * 3
		fmt.Fprintf(&b, "(%s, %s, %s)",
			placeholder(driver, p+1),
			placeholder(driver, p+2),
			placeholder(driver, p+3))
	}
	return b.String()
}
