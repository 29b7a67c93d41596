// Package extract pulls plain text out of study files.
//
// Each supported format has an extractor; ForFile picks one by file
// extension. Extractors return text ready for chunking, with document
// structure flattened to section breadcrumbs where the format has any.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported reports a file extension no extractor handles.
var ErrUnsupported = errors.New("unsupported file type")

// Extractor converts one file format into plain text.
type Extractor interface {
	Extract(r io.Reader, filename string) (string, error)
}

// supportedExtensions lists the formats the engine ingests.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(filename string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &Text{}, nil
	case ".md", ".markdown":
		return NewMarkdown(), nil
	case ".html", ".htm":
		return &HTML{}, nil
	case ".pdf":
		return &PDF{}, nil
	case ".docx":
		return &DOCX{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// Supported checks whether a filename has an extractor.
func Supported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// File opens path and extracts its text.
func File(path string) (string, error) {
	extractor, err := ForFile(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	text, err := extractor.Extract(f, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	return text, nil
}
