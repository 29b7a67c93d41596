package extract

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// skippedElements hold no prose worth indexing.
var skippedElements = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
	"nav":    true,
	"footer": true,
	"header": true,
	"aside":  true,
}

// blockElements end the current paragraph when closed.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "blockquote": true, "pre": true,
	"table": true, "ul": true, "ol": true,
}

// HTML extracts visible text from an HTML page, dropping boilerplate
// elements and flattening the rest into paragraphs.
type HTML struct{}

func (HTML) Extract(r io.Reader, _ string) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}

	var paragraphs []string
	var current strings.Builder

	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			paragraphs = append(paragraphs, text)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.Data] {
				return
			}
			if n.Data == "br" {
				flush()
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if current.Len() > 0 {
					current.WriteByte(' ')
				}
				current.WriteString(text)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			flush()
		}
	}
	walk(root)
	flush()

	return strings.Join(paragraphs, "\n\n"), nil
}
