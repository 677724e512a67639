package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livinlefevreloca/healthsync/internal/health"
)

// MockSink records every batch it is handed
type MockSink struct {
	mu        sync.Mutex
	batches   [][]health.Record
	failAt    int
	failErr   error
	rowsShort int64
}

func NewMockSink() *MockSink {
	return &MockSink{}
}

// FailAt makes the n-th call (1-based) to InsertRecords return err without
// storing the batch
func (m *MockSink) FailAt(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAt = n
	m.failErr = err
}

// ReportShort makes every batch report n fewer rows than it was given
func (m *MockSink) ReportShort(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowsShort = n
}

func (m *MockSink) InsertRecords(_ context.Context, records []health.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.batches) + 1
	if m.failAt > 0 && call == m.failAt {
		return 0, m.failErr
	}

	batch := make([]health.Record, len(records))
	copy(batch, records)
	m.batches = append(m.batches, batch)

	return int64(len(records)) - m.rowsShort, nil
}

func (m *MockSink) Batches() [][]health.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([][]health.Record, len(m.batches))
	copy(result, m.batches)
	return result
}

// Records returns every stored record in insertion order
func (m *MockSink) Records() []health.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []health.Record
	for _, batch := range m.batches {
		result = append(result, batch...)
	}
	return result
}

func (m *MockSink) CountBatches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// MockWatermarkStore serves a fixed high-water mark
type MockWatermarkStore struct {
	mu      sync.Mutex
	max     time.Time
	present bool
	err     error
	calls   int
}

func NewMockWatermarkStore() *MockWatermarkStore {
	return &MockWatermarkStore{}
}

func (m *MockWatermarkStore) SetMax(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.max = t
	m.present = true
}

func (m *MockWatermarkStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockWatermarkStore) MaxRecordedAt(_ context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return time.Time{}, false, m.err
	}
	return m.max, m.present, nil
}

func (m *MockWatermarkStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// TestLogger provides a logger that captures logs for testing
type TestLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

func NewTestLogger() *TestLogger {
	return &TestLogger{
		entries: make([]LogEntry, 0),
	}
}

func (l *TestLogger) log(level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := LogEntry{
		Level:   level,
		Message: msg,
		Fields:  make(map[string]interface{}),
	}

	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key := fmt.Sprintf("%v", fields[i])
			entry.Fields[key] = fields[i+1]
		}
	}

	l.entries = append(l.entries, entry)
}

func (l *TestLogger) GetEntries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, len(l.entries))
	copy(result, l.entries)
	return result
}

// GetEntriesByMessage returns entries logged with msg
func (l *TestLogger) GetEntriesByMessage(msg string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]LogEntry, 0)
	for _, entry := range l.entries {
		if entry.Message == msg {
			result = append(result, entry)
		}
	}
	return result
}

func (l *TestLogger) HasError() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range l.entries {
		if entry.Level == "ERROR" {
			return true
		}
	}
	return false
}

// Logger returns a *slog.Logger that writes to this TestLogger
func (l *TestLogger) Logger() *slog.Logger {
	return slog.New(&testLogHandler{logger: l})
}

// testLogHandler implements slog.Handler for TestLogger
type testLogHandler struct {
	logger *TestLogger
	attrs  []slog.Attr
}

func (h *testLogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]interface{}, 0, (r.NumAttrs()+len(h.attrs))*2)
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, a.Key, a.Value.Any())
		return true
	})
	for _, attr := range h.attrs {
		fields = append(fields, attr.Key, attr.Value.Any())
	}

	h.logger.log(r.Level.String(), r.Message, fields...)
	return nil
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &testLogHandler{
		logger: h.logger,
		attrs:  newAttrs,
	}
}

// Groups are flattened; none of the callers use them.
func (h *testLogHandler) WithGroup(_ string) slog.Handler {
	return h
}
