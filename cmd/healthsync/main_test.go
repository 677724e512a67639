package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livinlefevreloca/healthsync/internal/db"
	"github.com/livinlefevreloca/healthsync/internal/health"
	"github.com/livinlefevreloca/healthsync/internal/testutil"
)

const stepCount = "HKQuantityTypeIdentifierStepCount"

type fixture struct {
	dir    string
	dbPath string
	config string
}

// newFixture creates a sqlite database file with the health_stats table and
// a config pointing at it. extra is appended to the config.
func newFixture(t *testing.T, schema string, extra string) fixture {
	t.Helper()

	dir := t.TempDir()
	f := fixture{
		dir:    dir,
		dbPath: filepath.Join(dir, "health.db"),
		config: filepath.Join(dir, "config.toml"),
	}

	database, err := db.Open(context.Background(), db.DriverSQLite, f.dbPath)
	require.NoError(t, err)
	if schema != "" {
		_, err = database.Exec(schema)
		require.NoError(t, err)
	}
	require.NoError(t, database.Close())

	content := fmt.Sprintf("[db]\ndriver = \"sqlite3\"\ndsn = %q\n\n[load]\nbatch_size = 2\n%s", f.dbPath, extra)
	testutil.WriteFile(t, f.config, content)
	return f
}

const healthStatsSchema = `CREATE TABLE health_stats (
	type TEXT NOT NULL,
	datetime TIMESTAMP NOT NULL,
	value TEXT NOT NULL
)`

func (f fixture) writeExport(t *testing.T, records ...string) string {
	t.Helper()
	path := filepath.Join(f.dir, "export.xml")
	testutil.WriteFile(t, path, testutil.ExportDoc(records...))
	return path
}

func (f fixture) countRows(t *testing.T) int {
	t.Helper()
	database, err := db.Open(context.Background(), db.DriverSQLite, f.dbPath)
	require.NoError(t, err)
	defer database.Close()

	var n int
	require.NoError(t, database.QueryRow("SELECT count(*) FROM health_stats").Scan(&n))
	return n
}

func sampleRecords() []string {
	return []string{
		testutil.RecordXML(stepCount, "2024-01-01 08:00:00 +0000", "10"),
		testutil.RecordXML(stepCount, "2024-01-01 09:00:00 +0000", "20"),
		testutil.RecordXML(stepCount, "2024-01-01 10:00:00 +0000", "30"),
	}
}

func TestRun_LoadsAndIsIdempotent(t *testing.T) {
	f := newFixture(t, healthStatsSchema, "")
	exportPath := f.writeExport(t, sampleRecords()...)

	var out bytes.Buffer
	code := run(context.Background(), []string{"-config", f.config, exportPath}, &out)
	require.Equal(t, exitOK, code, out.String())
	assert.Equal(t, 3, f.countRows(t))
	assert.Contains(t, out.String(), "records inserted")

	out.Reset()
	code = run(context.Background(), []string{"-config", f.config, exportPath}, &out)
	require.Equal(t, exitOK, code, out.String())
	assert.Equal(t, 3, f.countRows(t))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	f := newFixture(t, healthStatsSchema, "")
	exportPath := f.writeExport(t, sampleRecords()...)

	var out bytes.Buffer
	code := run(context.Background(), []string{"-config", f.config, "-dry-run", exportPath}, &out)
	require.Equal(t, exitOK, code, out.String())
	assert.Equal(t, 0, f.countRows(t))
	assert.Contains(t, out.String(), "would_insert=3")
}

func TestRun_JSONLogsCarryRunID(t *testing.T) {
	f := newFixture(t, healthStatsSchema, "\n[logging]\nformat = \"json\"\n")
	exportPath := f.writeExport(t, sampleRecords()...)

	var out bytes.Buffer
	code := run(context.Background(), []string{"-config", f.config, exportPath}, &out)
	require.Equal(t, exitOK, code, out.String())

	runIDs := map[string]bool{}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry), scanner.Text())
		id, ok := entry["run_id"].(string)
		require.True(t, ok, "line without run_id: %s", scanner.Text())
		runIDs[id] = true
	}
	assert.Len(t, runIDs, 1)
}

func TestRun_WritesMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	promPath := filepath.Join(dir, "healthsync.prom")
	f := newFixture(t, healthStatsSchema, fmt.Sprintf("\n[metrics]\ntextfile_path = %q\n", promPath))
	exportPath := f.writeExport(t, sampleRecords()...)

	var out bytes.Buffer
	require.Equal(t, exitOK, run(context.Background(), []string{"-config", f.config, exportPath}, &out), out.String())

	content, err := os.ReadFile(promPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "healthsync_records_inserted_total 3")
	assert.Contains(t, string(content), `healthsync_records_parsed_total{outcome="emitted"} 3`)
	assert.Contains(t, string(content), "healthsync_last_success_timestamp_seconds")
}

func TestRun_ExitCodes(t *testing.T) {
	rejectTrigger := healthStatsSchema + `;
CREATE TRIGGER reject_all BEFORE INSERT ON health_stats BEGIN SELECT RAISE(ABORT, 'read-only'); END`

	tests := []struct {
		name   string
		schema string
		args   func(f fixture, t *testing.T) []string
		want   int
	}{
		{
			name:   "missing config",
			schema: healthStatsSchema,
			args: func(f fixture, t *testing.T) []string {
				return []string{"-config", filepath.Join(f.dir, "nope.toml"), f.writeExport(t)}
			},
			want: exitConfig,
		},
		{
			name:   "unknown flag",
			schema: healthStatsSchema,
			args:   func(f fixture, t *testing.T) []string { return []string{"-verbose"} },
			want:   exitConfig,
		},
		{
			name:   "too many arguments",
			schema: healthStatsSchema,
			args:   func(f fixture, t *testing.T) []string { return []string{"-config", f.config, "a.xml", "b.xml"} },
			want:   exitConfig,
		},
		{
			name:   "missing export",
			schema: healthStatsSchema,
			args: func(f fixture, t *testing.T) []string {
				return []string{"-config", f.config, filepath.Join(f.dir, "missing.zip")}
			},
			want: exitSource,
		},
		{
			name:   "malformed date",
			schema: healthStatsSchema,
			args: func(f fixture, t *testing.T) []string {
				return []string{"-config", f.config, f.writeExport(t, testutil.RecordXML(stepCount, "01/01/2024", "1"))}
			},
			want: exitFormat,
		},
		{
			name:   "missing table",
			schema: "",
			args: func(f fixture, t *testing.T) []string {
				return []string{"-config", f.config, f.writeExport(t, sampleRecords()...)}
			},
			want: exitConnectivity,
		},
		{
			name:   "rejected insert",
			schema: rejectTrigger,
			args: func(f fixture, t *testing.T) []string {
				return []string{"-config", f.config, f.writeExport(t, sampleRecords()...)}
			},
			want: exitWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.schema, "")
			var out bytes.Buffer
			code := run(context.Background(), tt.args(f, t), &out)
			assert.Equal(t, tt.want, code, out.String())
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: exitOK},
		{err: fmt.Errorf("load: %w", health.ErrConfig), want: exitConfig},
		{err: health.ErrSourceResolution, want: exitSource},
		{err: &health.FormatError{Line: 3, Attr: "startDate", Err: errors.New("bad")}, want: exitFormat},
		{err: health.ErrSinkConnectivity, want: exitConnectivity},
		{err: health.ErrSinkWrite, want: exitWrite},
		{err: errors.New("boom"), want: exitFailure},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = strings.ReplaceAll(tt.err.Error(), " ", "_")
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
