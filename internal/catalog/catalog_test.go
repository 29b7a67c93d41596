package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleRegistry = `{
  "BCS503": {"name": "Theory of Computation", "sources": ["https://example.edu/toc.pdf"]},
  "bec304": {"name": "Control Systems"},
  "  ": {"name": "ignored"}
}`

// TestParse verifies codes are canonicalised and blank codes dropped.
func TestParse(t *testing.T) {
	catalog, err := Parse(strings.NewReader(sampleRegistry))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.Len() != 2 {
		t.Fatalf("expected 2 subjects, got %d", catalog.Len())
	}

	subject, ok := catalog.Lookup("bcs503")
	if !ok {
		t.Fatal("expected lookup of bcs503 to succeed")
	}
	if subject.Code != "BCS503" {
		t.Errorf("expected canonical code BCS503, got %q", subject.Code)
	}
	if subject.Name != "Theory of Computation" {
		t.Errorf("unexpected name %q", subject.Name)
	}
	if len(subject.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(subject.Sources))
	}

	if !catalog.Has(" BEC304 ") {
		t.Error("expected Has to tolerate case and whitespace")
	}
	if catalog.Has("MISSING") {
		t.Error("expected MISSING to be absent")
	}
}

// TestParse_Malformed verifies a broken registry file is an error rather
// than a silently empty catalog.
func TestParse_Malformed(t *testing.T) {
	if _, err := Parse(strings.NewReader(`{"BCS503": `)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestSubjects_Sorted(t *testing.T) {
	catalog, err := Parse(strings.NewReader(sampleRegistry))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	subjects := catalog.Subjects()
	if len(subjects) != 2 {
		t.Fatalf("expected 2 subjects, got %d", len(subjects))
	}
	if subjects[0].Code != "BCS503" || subjects[1].Code != "BEC304" {
		t.Errorf("expected sorted codes, got %q then %q", subjects[0].Code, subjects[1].Code)
	}
}

// TestLoad_MissingFile verifies an absent registry yields an empty catalog.
func TestLoad_MissingFile(t *testing.T) {
	catalog, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.Len() != 0 {
		t.Errorf("expected empty catalog, got %d subjects", catalog.Len())
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subjects.json")
	if err := os.WriteFile(path, []byte(sampleRegistry), 0o644); err != nil {
		t.Fatal(err)
	}
	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !catalog.Has("BCS503") {
		t.Error("expected BCS503 in loaded catalog")
	}
}
