// Package chunker splits document text into overlapping, retrieval-sized pieces.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Default window sizes, in tokens. A token is a whitespace-delimited word;
// exact model tokenization is not required for chunk sizing.
const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50
)

// ErrInvalidInput reports unusable chunking parameters.
var ErrInvalidInput = errors.New("invalid chunking parameters")

// Piece is one chunk of a document, in document order.
type Piece struct {
	Ordinal int    // position within the document (0, 1, 2...)
	Text    string // the chunk text, sliced from the original document
	Tokens  int    // number of tokens in this piece
	Overlap int    // tokens shared with the previous piece (0 for the first)
}

// Chunker produces overlapping word-window chunks. Consecutive windows slide
// by maxTokens-overlapTokens so neighbours share overlapTokens of context.
// Where a sentence ends inside the overlap region, the window is trimmed to
// that boundary; the trimmed tail is re-covered by the next window, so no
// text is lost. Trimming is best-effort only.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New creates a Chunker. overlapTokens must be smaller than maxTokens.
func New(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidInput, maxTokens)
	}
	if overlapTokens < 0 {
		return nil, fmt.Errorf("%w: overlap tokens must not be negative, got %d", ErrInvalidInput, overlapTokens)
	}
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than window %d", ErrInvalidInput, overlapTokens, maxTokens)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// MaxTokens returns the configured window size.
func (c *Chunker) MaxTokens() int { return c.maxTokens }

// OverlapTokens returns the configured overlap.
func (c *Chunker) OverlapTokens() int { return c.overlapTokens }

// span marks the byte range of one token within the source text.
type span struct {
	start, stop int
}

// Split chunks text into ordered pieces. Empty or all-whitespace text yields
// no pieces. Text shorter than the window yields exactly one piece covering
// the whole text. Split is a pure function of its input.
func (c *Chunker) Split(text string) []Piece {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	if len(tokens) <= c.maxTokens {
		return []Piece{{
			Ordinal: 0,
			Text:    slice(text, tokens, 0, len(tokens)),
			Tokens:  len(tokens),
		}}
	}

	stride := c.maxTokens - c.overlapTokens
	var pieces []Piece
	prevEnd := 0

	for start := 0; start < len(tokens); start += stride {
		end := start + c.maxTokens
		last := end >= len(tokens)
		if last {
			end = len(tokens)
		} else {
			// Prefer ending on a sentence boundary, but only look inside the
			// overlap region: the next window starts there, so trimmed tokens
			// are still covered.
			if b := lastSentenceEnd(text, tokens, end-c.overlapTokens, end); b > start {
				end = b
			}
		}

		overlap := 0
		if len(pieces) > 0 && prevEnd > start {
			overlap = prevEnd - start
		}

		pieces = append(pieces, Piece{
			Ordinal: len(pieces),
			Text:    slice(text, tokens, start, end),
			Tokens:  end - start,
			Overlap: overlap,
		})
		prevEnd = end

		if last {
			break
		}
	}

	return pieces
}

// tokenize records the byte span of every whitespace-delimited token.
func tokenize(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

// slice returns the original text between the first and last token of the
// half-open token range [from, to), preserving interior formatting.
func slice(text string, tokens []span, from, to int) string {
	return text[tokens[from].start:tokens[to-1].stop]
}

// lastSentenceEnd scans the token range [from, to) backwards for the last
// token that closes a sentence and returns the index just after it, or -1.
func lastSentenceEnd(text string, tokens []span, from, to int) int {
	if from < 0 {
		from = 0
	}
	for i := to - 1; i >= from; i-- {
		if endsSentence(text[tokens[i].start:tokens[i].stop]) {
			return i + 1
		}
	}
	return -1
}

// endsSentence reports whether a token terminates a sentence. Trailing
// quotes and closing brackets are ignored before checking the terminator.
func endsSentence(token string) bool {
	token = strings.TrimRight(token, `"')]}`+"”’")
	if token == "" {
		return false
	}
	switch token[len(token)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
