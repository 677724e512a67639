// Package export resolves a health-data export on disk and streams its
// records.
package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/livinlefevreloca/healthsync/internal/health"
)

const (
	// DefaultPath is used when no export path is given
	DefaultPath = "export.xml"

	// BundleRoot is the top-level directory of an export archive
	BundleRoot = "apple_health_export"

	// DocumentName is the name of the export document inside a bundle
	DocumentName = "export.xml"
)

// Mode describes how a Source was resolved
type Mode string

const (
	ModeZip       Mode = "zip"
	ModeDirectory Mode = "directory"
	ModeFile      Mode = "file"
)

// Source is an opened export document
type Source struct {
	// Path names the document that was opened. For archives it is
	// "<archive>!<member>".
	Path string
	Mode Mode

	doc     io.ReadCloser
	archive io.Closer
}

// Open resolves path to a single export document. A path ending in .zip is
// read as an archive containing apple_health_export/export.xml, a directory
// must contain export.xml (or apple_health_export/export.xml) and anything
// else is opened as the document itself.
func Open(p string) (*Source, error) {
	if strings.EqualFold(filepath.Ext(p), ".zip") {
		return openZip(p)
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", health.ErrSourceResolution, err)
	}
	if info.IsDir() {
		return openDir(p)
	}
	return openFile(p, ModeFile)
}

func openZip(p string) (*Source, error) {
	archive, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("%w: open archive %s: %w", health.ErrSourceResolution, p, err)
	}

	member := path.Join(BundleRoot, DocumentName)
	doc, err := archive.Open(member)
	if err != nil {
		archive.Close()
		return nil, fmt.Errorf("%w: archive %s has no %s: %w", health.ErrSourceResolution, p, member, err)
	}

	return &Source{
		Path:    p + "!" + member,
		Mode:    ModeZip,
		doc:     doc,
		archive: archive,
	}, nil
}

func openDir(dir string) (*Source, error) {
	candidates := []string{
		filepath.Join(dir, DocumentName),
		filepath.Join(dir, BundleRoot, DocumentName),
	}

	for _, candidate := range candidates {
		src, err := openFile(candidate, ModeDirectory)
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: directory %s does not contain %s", health.ErrSourceResolution, dir, DocumentName)
}

func openFile(p string, mode Mode) (*Source, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", health.ErrSourceResolution, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", health.ErrSourceResolution, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", health.ErrSourceResolution, p)
	}

	return &Source{Path: p, Mode: mode, doc: f}, nil
}

// Read reads from the export document
func (s *Source) Read(p []byte) (int, error) {
	return s.doc.Read(p)
}

// Close releases the document and, for archives, the archive itself
func (s *Source) Close() error {
	err := s.doc.Close()
	if s.archive != nil {
		if cerr := s.archive.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
