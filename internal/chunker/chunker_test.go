package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// words builds a deterministic space-separated text of n distinct words.
func words(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "w%04d", i)
	}
	return b.String()
}

// TestSplit_WindowArithmetic verifies chunk count and exact overlap for a
// plain 3000-word document at the default window sizes.
func TestSplit_WindowArithmetic(t *testing.T) {
	c, err := New(500, 50)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	pieces := c.Split(words(3000))

	// Stride 450 over 3000 words: starts at 0, 450, ..., 2700 = 7 pieces.
	if len(pieces) != 7 {
		t.Fatalf("Expected 7 pieces, got %d", len(pieces))
	}

	for i, p := range pieces {
		if p.Ordinal != i {
			t.Errorf("Piece %d: ordinal %d", i, p.Ordinal)
		}
		// Full windows are 500 tokens; the last piece covers the remaining
		// 300 (starts at 2700).
		wantTokens := 500
		if i == len(pieces)-1 {
			wantTokens = 300
		}
		if p.Tokens != wantTokens {
			t.Errorf("Piece %d: expected %d tokens, got %d", i, wantTokens, p.Tokens)
		}
		wantOverlap := 50
		if i == 0 {
			wantOverlap = 0
		}
		if p.Overlap != wantOverlap {
			t.Errorf("Piece %d: expected overlap %d, got %d", i, wantOverlap, p.Overlap)
		}
	}

	// Neighbouring pieces share exactly the last 50 words of the earlier one.
	for i := 1; i < len(pieces); i++ {
		prev := strings.Fields(pieces[i-1].Text)
		curr := strings.Fields(pieces[i].Text)
		tail := strings.Join(prev[len(prev)-50:], " ")
		head := strings.Join(curr[:50], " ")
		if tail != head {
			t.Errorf("Pieces %d/%d: overlap text mismatch", i-1, i)
		}
	}
}

// TestSplit_CoversAllTokens verifies no token is dropped between pieces.
func TestSplit_CoversAllTokens(t *testing.T) {
	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	text := words(731)
	pieces := c.Split(text)

	seen := make(map[string]bool)
	for _, p := range pieces {
		for _, w := range strings.Fields(p.Text) {
			seen[w] = true
		}
	}

	for _, w := range strings.Fields(text) {
		if !seen[w] {
			t.Fatalf("Token %q missing from every piece", w)
		}
	}

	// Last piece must end on the final token.
	last := pieces[len(pieces)-1]
	if !strings.HasSuffix(last.Text, "w0730") {
		t.Errorf("Last piece does not reach end of text: %q", last.Text[len(last.Text)-20:])
	}
}

// TestSplit_ShortText verifies text within one window yields a single piece.
func TestSplit_ShortText(t *testing.T) {
	c, err := New(500, 50)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	text := "A short note.\n\nWith two paragraphs."
	pieces := c.Split(text)

	if len(pieces) != 1 {
		t.Fatalf("Expected 1 piece, got %d", len(pieces))
	}
	if pieces[0].Text != text {
		t.Errorf("Expected piece to equal whole text, got %q", pieces[0].Text)
	}
	if pieces[0].Tokens != 6 {
		t.Errorf("Expected 6 tokens, got %d", pieces[0].Tokens)
	}
	if pieces[0].Overlap != 0 {
		t.Errorf("Expected 0 overlap, got %d", pieces[0].Overlap)
	}
}

// TestSplit_EmptyText verifies empty and whitespace-only input yield no pieces.
func TestSplit_EmptyText(t *testing.T) {
	c, err := New(500, 50)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, input := range []string{"", "   ", "\n\t\n"} {
		if pieces := c.Split(input); len(pieces) != 0 {
			t.Errorf("Split(%q): expected no pieces, got %d", input, len(pieces))
		}
	}
}

// TestSplit_SentenceBoundary verifies windows are trimmed to a sentence end
// inside the overlap region and the trimmed tail reappears in the next piece.
func TestSplit_SentenceBoundary(t *testing.T) {
	c, err := New(20, 5)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// 30 words; word 17 (0-based 16) ends a sentence, inside the overlap
	// region [15, 20) of the first window.
	parts := make([]string, 30)
	for i := range parts {
		parts[i] = fmt.Sprintf("t%02d", i)
	}
	parts[16] += "."
	text := strings.Join(parts, " ")

	pieces := c.Split(text)

	if len(pieces) != 2 {
		t.Fatalf("Expected 2 pieces, got %d", len(pieces))
	}

	// First window trimmed from 20 tokens back to the boundary after token 16.
	if pieces[0].Tokens != 17 {
		t.Errorf("Piece 0: expected 17 tokens, got %d", pieces[0].Tokens)
	}
	if !strings.HasSuffix(pieces[0].Text, "t16.") {
		t.Errorf("Piece 0 should end at sentence boundary, got %q", pieces[0].Text)
	}

	// Second window still starts at the stride position (token 15), so the
	// shared region shrinks to 2 tokens and nothing is lost.
	if !strings.HasPrefix(pieces[1].Text, "t15") {
		t.Errorf("Piece 1 should start at token 15, got %q", pieces[1].Text)
	}
	if pieces[1].Overlap != 2 {
		t.Errorf("Piece 1: expected overlap 2, got %d", pieces[1].Overlap)
	}
	if !strings.HasSuffix(pieces[1].Text, "t29") {
		t.Errorf("Piece 1 should reach end of text")
	}
}

// TestSplit_NoBoundaryInOverlap verifies sentence ends outside the overlap
// region do not shift the window.
func TestSplit_NoBoundaryInOverlap(t *testing.T) {
	c, err := New(20, 5)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Sentence end at token 5 is well before the overlap region [15, 20).
	parts := make([]string, 30)
	for i := range parts {
		parts[i] = fmt.Sprintf("t%02d", i)
	}
	parts[5] += "."
	text := strings.Join(parts, " ")

	pieces := c.Split(text)

	if len(pieces) != 2 {
		t.Fatalf("Expected 2 pieces, got %d", len(pieces))
	}
	if pieces[0].Tokens != 20 {
		t.Errorf("Piece 0: expected full 20-token window, got %d", pieces[0].Tokens)
	}
	if pieces[1].Overlap != 5 {
		t.Errorf("Piece 1: expected overlap 5, got %d", pieces[1].Overlap)
	}
}

// TestSplit_PreservesFormatting verifies interior newlines survive chunking.
func TestSplit_PreservesFormatting(t *testing.T) {
	c, err := New(500, 50)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	text := "line one\nline two\n\nparagraph two here"
	pieces := c.Split(text)

	if len(pieces) != 1 {
		t.Fatalf("Expected 1 piece, got %d", len(pieces))
	}
	if !strings.Contains(pieces[0].Text, "\n\n") {
		t.Errorf("Piece lost paragraph break: %q", pieces[0].Text)
	}
}

// TestNew_InvalidParameters verifies parameter validation.
func TestNew_InvalidParameters(t *testing.T) {
	cases := []struct {
		name         string
		max, overlap int
	}{
		{"zero window", 0, 0},
		{"negative window", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals window", 100, 100},
		{"overlap exceeds window", 100, 150},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.max, tc.overlap)
			if err == nil {
				t.Fatalf("New(%d, %d): expected error", tc.max, tc.overlap)
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("New(%d, %d): expected ErrInvalidInput, got %v", tc.max, tc.overlap, err)
			}
		})
	}
}
