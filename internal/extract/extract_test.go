package extract

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestForFile verifies extension dispatch picks the right extractor.
func TestForFile(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"notes.txt", "*extract.Text"},
		{"notes.md", "*extract.Markdown"},
		{"notes.markdown", "*extract.Markdown"},
		{"page.html", "*extract.HTML"},
		{"page.htm", "*extract.HTML"},
		{"paper.pdf", "*extract.PDF"},
		{"essay.docx", "*extract.DOCX"},
		{"NOTES.TXT", "*extract.Text"},
	}
	for _, tc := range cases {
		extractor, err := ForFile(tc.filename)
		if err != nil {
			t.Errorf("ForFile(%q): unexpected error: %v", tc.filename, err)
			continue
		}
		if got := fmt.Sprintf("%T", extractor); got != tc.want {
			t.Errorf("ForFile(%q) = %s, want %s", tc.filename, got, tc.want)
		}
	}
}

// TestForFile_Unsupported verifies unknown extensions report ErrUnsupported.
func TestForFile_Unsupported(t *testing.T) {
	for _, filename := range []string{"sheet.xlsx", "archive.zip", "noext"} {
		_, err := ForFile(filename)
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("ForFile(%q): expected ErrUnsupported, got %v", filename, err)
		}
	}
}

func TestSupported(t *testing.T) {
	if !Supported("notes.md") {
		t.Error("expected notes.md to be supported")
	}
	if !Supported("PAPER.PDF") {
		t.Error("expected PAPER.PDF to be supported")
	}
	if Supported("binary.exe") {
		t.Error("expected binary.exe to be unsupported")
	}
}

// TestText_ParagraphSplitting verifies blank lines become paragraph breaks
// and runs of blank lines collapse.
func TestText_ParagraphSplitting(t *testing.T) {
	input := "First line.\nSecond line.\n\n\nNext paragraph.\n   \nLast paragraph.\n"
	got, err := (&Text{}).Extract(strings.NewReader(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "First line.\nSecond line.\n\nNext paragraph.\n\nLast paragraph."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestText_Empty(t *testing.T) {
	got, err := (&Text{}).Extract(strings.NewReader(""), "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

// TestMarkdown_SectionBreadcrumbs verifies each section keeps its full
// header path and sibling sections do not inherit each other.
func TestMarkdown_SectionBreadcrumbs(t *testing.T) {
	input := `Intro before any heading.

# Cell Biology

Cells are the basic unit.

## Mitosis

Cell division process.

## Meiosis

Gamete formation.
`
	got, err := NewMarkdown().Extract(strings.NewReader(input), "bio.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Intro before any heading." +
		"\n\n# Cell Biology\n\nCells are the basic unit." +
		"\n\n# Cell Biology > ## Mitosis\n\nCell division process." +
		"\n\n# Cell Biology > ## Meiosis\n\nGamete formation."
	if got != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, got)
	}
}

// TestMarkdown_SkipsEmptySections verifies headings with no body of their
// own produce no section; their titles still appear in child breadcrumbs.
func TestMarkdown_SkipsEmptySections(t *testing.T) {
	input := "# Physics\n\n## Optics\n\nLight bends at interfaces.\n"
	got, err := NewMarkdown().Extract(strings.NewReader(input), "phys.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "# Physics > ## Optics\n\nLight bends at interfaces."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

// TestMarkdown_DeepNesting verifies breadcrumbs carry every ancestor level.
func TestMarkdown_DeepNesting(t *testing.T) {
	input := "# A\n\ntop\n\n## B\n\n### C\n\ndeep content\n"
	got, err := NewMarkdown().Extract(strings.NewReader(input), "deep.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "# A > ## B > ### C\n\ndeep content") {
		t.Errorf("expected nested breadcrumb section, got %q", got)
	}
}

// TestMarkdown_NoHeadings verifies plain prose passes through unchanged.
func TestMarkdown_NoHeadings(t *testing.T) {
	input := "Just a paragraph.\n\nAnd another.\n"
	got, err := NewMarkdown().Extract(strings.NewReader(input), "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Just a paragraph.\n\nAnd another."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

// TestHTML_SkipsBoilerplate verifies script, style and navigation content
// never reaches the output.
func TestHTML_SkipsBoilerplate(t *testing.T) {
	input := `<html><head><title>T</title><style>body{color:red}</style></head>
<body>
<nav>Home | About</nav>
<h1>Photosynthesis</h1>
<p>Plants convert light to energy.</p>
<script>alert("hi")</script>
<p>Chlorophyll absorbs red light.</p>
<footer>Copyright</footer>
</body></html>`
	got, err := (&HTML{}).Extract(strings.NewReader(input), "page.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Photosynthesis\n\nPlants convert light to energy.\n\nChlorophyll absorbs red light."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

// TestHTML_InlineMarkup verifies inline elements flatten into one paragraph.
func TestHTML_InlineMarkup(t *testing.T) {
	input := `<p>Hello <b>bold</b> world</p>`
	got, err := (&HTML{}).Extract(strings.NewReader(input), "inline.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello bold world" {
		t.Errorf("expected %q, got %q", "Hello bold world", got)
	}
}

// TestHTML_ListItems verifies each list item becomes its own paragraph.
func TestHTML_ListItems(t *testing.T) {
	input := `<ul><li>one</li><li>two</li></ul>`
	got, err := (&HTML{}).Extract(strings.NewReader(input), "list.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "one\n\ntwo" {
		t.Errorf("expected %q, got %q", "one\n\ntwo", got)
	}
}
