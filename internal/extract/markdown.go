package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Markdown flattens a markdown document into plain text sections. Each
// section keeps its header hierarchy as a breadcrumb line, "# Title > ##
// Section", so retrieval hits carry their place in the document.
type Markdown struct {
	parser goldmark.Markdown
}

// NewMarkdown creates a markdown extractor backed by a goldmark parser.
func NewMarkdown() *Markdown {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Markdown{parser: md}
}

func (m *Markdown) Extract(r io.Reader, _ string) (string, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read markdown: %w", err)
	}

	doc := m.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(6),
	)
	if err != nil {
		return "", fmt.Errorf("inspect TOC: %w", err)
	}

	titles := make(map[string]string)
	collectTitles(tree.Items, titles)

	headings := collectHeadings(doc)
	if len(headings) == 0 {
		return strings.TrimSpace(string(source)), nil
	}

	var sections []string

	// Content before the first heading has no breadcrumb.
	if preamble := strings.TrimSpace(string(source[:lineStart(source, headingStart(headings[0]))])); preamble != "" {
		sections = append(sections, preamble)
	}

	// crumb tracks the ancestor titles of the current section by level.
	type crumb struct {
		level int
		title string
	}
	var stack []crumb

	for i, heading := range headings {
		title := headingTitle(heading, source, titles)
		for len(stack) > 0 && stack[len(stack)-1].level >= heading.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, crumb{level: heading.Level, title: title})

		start := headingStop(heading)
		end := len(source)
		if i+1 < len(headings) {
			end = lineStart(source, headingStart(headings[i+1]))
		}

		content := strings.TrimSpace(string(source[start:end]))
		if content == "" {
			continue
		}

		var parts []string
		for _, c := range stack {
			parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", c.level), c.title))
		}
		sections = append(sections, strings.Join(parts, " > ")+"\n\n"+content)
	}

	return strings.Join(sections, "\n\n"), nil
}

// collectTitles maps heading IDs to their rendered titles.
func collectTitles(items toc.Items, titles map[string]string) {
	for _, item := range items {
		titles[string(item.ID)] = string(item.Title)
		collectTitles(item.Items, titles)
	}
}

// collectHeadings returns every heading with source lines in document order.
func collectHeadings(doc ast.Node) []*ast.Heading {
	var headings []*ast.Heading
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			if heading.Lines().Len() > 0 {
				headings = append(headings, heading)
			}
		}
		return ast.WalkContinue, nil
	})
	return headings
}

// headingTitle prefers the TOC's rendered title; raw source is the fallback
// for headings the TOC skipped.
func headingTitle(heading *ast.Heading, source []byte, titles map[string]string) string {
	if id, ok := heading.AttributeString("id"); ok {
		if title, ok := titles[string(id.([]byte))]; ok && title != "" {
			return title
		}
	}
	lines := heading.Lines()
	return strings.TrimSpace(string(source[lines.At(0).Start:lines.At(lines.Len()-1).Stop]))
}

// headingStart is the byte offset of the heading's text.
func headingStart(heading *ast.Heading) int {
	return heading.Lines().At(0).Start
}

// headingStop is the byte offset just past the heading's text.
func headingStop(heading *ast.Heading) int {
	lines := heading.Lines()
	return lines.At(lines.Len() - 1).Stop
}

// lineStart walks back from pos to the start of its line, so section
// boundaries include the heading markers.
func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}
