package extract

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"
)

// DOCX extracts paragraph text from a Word document. Heading-styled
// paragraphs keep their level as a markdown-style prefix so the structure
// survives flattening.
type DOCX struct{}

func (DOCX) Extract(r io.Reader, _ string) (string, error) {
	// go-docx needs a ReadSeeker plus size, so spool to a temp file.
	tmp, err := os.CreateTemp("", "studyrag-*.docx")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return "", fmt.Errorf("spool DOCX: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return "", fmt.Errorf("seek temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return "", fmt.Errorf("parse DOCX: %w", err)
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := paragraphText(para)
		if text == "" {
			continue
		}
		if level := headingLevel(para); level > 0 {
			text = strings.Repeat("#", level) + " " + text
		}
		paragraphs = append(paragraphs, text)
	}

	return strings.Join(paragraphs, "\n\n"), nil
}

// headingLevel reads the paragraph's style, returning 0 for body text.
func headingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if rest, ok := strings.CutPrefix(style, "heading"); ok && len(rest) == 1 {
		if level := int(rest[0] - '0'); level >= 1 && level <= 6 {
			return level
		}
	}
	return 0
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
