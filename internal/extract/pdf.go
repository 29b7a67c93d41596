package extract

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the text layer of a PDF, one paragraph per page. Scanned
// documents without a text layer come back empty.
type PDF struct{}

func (PDF) Extract(r io.Reader, _ string) (string, error) {
	// The PDF reader needs random access, so spool to a temp file first.
	tmp, err := os.CreateTemp("", "studyrag-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("spool PDF: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("spool PDF: %w", err)
	}

	f, reader, err := pdf.Open(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}
