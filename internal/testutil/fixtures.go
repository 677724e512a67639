package testutil

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ExportDoc wraps record elements in a minimal HealthData document
func ExportDoc(records ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE HealthData [` + "\n" + `<!ELEMENT HealthData (ExportDate,Me,(Record|Workout)*)>` + "\n" + `]>` + "\n")
	b.WriteString(`<HealthData locale="en_US">` + "\n")
	b.WriteString(` <ExportDate value="2024-02-01 10:00:00 +0000"/>` + "\n")
	for _, r := range records {
		b.WriteString(" " + r + "\n")
	}
	b.WriteString(`</HealthData>` + "\n")
	return b.String()
}

// RecordXML renders a single Record element
func RecordXML(vendorType, startDate, value string) string {
	return fmt.Sprintf(`<Record type=%q sourceName="Watch" unit="count" startDate=%q endDate=%q value=%q/>`,
		vendorType, startDate, startDate, value)
}

// WriteFile writes content to path, creating parent directories
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// WriteZip creates an archive at path holding the given members
func WriteZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}
}
