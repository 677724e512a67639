package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// decodeTimestamp converts a scanned datetime into a time.Time. Drivers hand
// back time.Time for typed columns, but aggregates over sqlite TEXT columns
// (and mysql without parseTime) come back as text. Text without a zone is
// read as UTC.
func decodeTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		return parseTimestampText(v)
	case []byte:
		return parseTimestampText(string(v))
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported datetime value of type %T", raw)
	}
}

func parseTimestampText(s string) (time.Time, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}
