// Package answer composes grounded answers: retrieved chunks go into the
// prompt, the generation backend writes the answer, and every chunk used
// is reported back as provenance.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vidya-labs/studyrag/internal/retrieval"
)

var (
	// ErrNoGrounding reports a question with no retrieved chunks to answer
	// from. The generation backend is never consulted in that case.
	ErrNoGrounding = errors.New("no grounding available")

	// ErrBackend reports a transient generation failure worth retrying.
	ErrBackend = errors.New("generation backend unavailable")
)

// Generator produces an answer from a fully built prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Provenance points at one chunk the answer drew on.
type Provenance struct {
	Source  string
	Subject string
	Ordinal int
	Score   float64
}

// Answer is a composed answer with the chunks behind it.
type Answer struct {
	Text       string
	Model      string
	Provenance []Provenance
}

// promptTemplate grounds the model in the retrieved notes: context first,
// then the question, with an explicit "I don't know" escape so the model
// does not invent material that is not in the notes.
const promptTemplate = `You are a helpful academic assistant that helps students answer their queries based on the provided context from their study materials. Use the context to provide an in depth explanation for the question. If the context does not contain the information needed to answer the question, respond with "I don't know".

Context:
%s

Question:
%s

Answer:`

// Composer turns retrieved chunks and a question into a grounded answer.
type Composer struct {
	generator Generator
	logger    *slog.Logger

	newBackOff func() backoff.BackOff
}

// NewComposer creates a composer over the given generation backend.
func NewComposer(generator Generator, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		generator:  generator,
		logger:     logger,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = time.Minute
	return bo
}

// Answer generates an answer to the question from the given chunks,
// highest similarity first. The provenance lists exactly the chunks
// presented, in presentation order.
func (c *Composer) Answer(ctx context.Context, question string, results []retrieval.Result) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("empty question")
	}
	if len(results) == 0 {
		return nil, ErrNoGrounding
	}

	prompt := buildPrompt(question, results)

	var text string
	operation := func() error {
		generated, err := c.generator.Generate(ctx, prompt)
		if err == nil {
			text = generated
			return nil
		}
		if errors.Is(err, ErrBackend) {
			c.logger.Warn("generation backend unavailable, retrying", "error", err)
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	provenance := make([]Provenance, len(results))
	for i, result := range results {
		provenance[i] = Provenance{
			Source:  result.Source,
			Subject: result.Subject,
			Ordinal: result.Ordinal,
			Score:   result.Score,
		}
	}

	c.logger.Debug("composed answer",
		"model", c.generator.Model(),
		"chunks", len(results),
		"answer_length", len(text),
	)
	return &Answer{
		Text:       strings.TrimSpace(text),
		Model:      c.generator.Model(),
		Provenance: provenance,
	}, nil
}

// buildPrompt assembles context blocks in the order given, then the
// question.
func buildPrompt(question string, results []retrieval.Result) string {
	var blocks strings.Builder
	for i, result := range results {
		if i > 0 {
			blocks.WriteString("\n\n")
		}
		blocks.WriteString(result.Text)
	}
	return fmt.Sprintf(promptTemplate, blocks.String(), question)
}
