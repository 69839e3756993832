// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/reviewrag/ai"
	"github.com/poiesic/reviewrag/core"
)

// DefaultSystemPrompt instructs the model to stay within the retrieved reviews.
const DefaultSystemPrompt = `You are a product assistant for an online store.
Answer the customer's question using only the product reviews provided.
Mention product names and ratings when they support the answer.
If the reviews do not contain the answer, say that you do not know.
Keep the answer short.`

// NoReviewsAnswer is returned without calling the model when nothing relevant was found.
const NoReviewsAnswer = "I could not find any reviews related to that question."

// Answer is a generated reply plus the reviews it was grounded on.
type Answer struct {
	Text    string
	Sources []core.SearchResult
}

// Answerer answers questions with a generation model grounded on retrieved reviews.
type Answerer struct {
	searcher     *Searcher
	generator    ai.Generator
	systemPrompt string
	timeout      time.Duration
	logger       *slog.Logger
}

// AnswerOption configures an Answerer.
type AnswerOption func(*Answerer) error

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) AnswerOption {
	return func(a *Answerer) error {
		if strings.TrimSpace(prompt) == "" {
			return fmt.Errorf("%w: empty system prompt", ErrInvalidOption)
		}
		a.systemPrompt = prompt
		return nil
	}
}

// WithGenerationTimeout sets the deadline for the model call. Default is 60s.
func WithGenerationTimeout(timeout time.Duration) AnswerOption {
	return func(a *Answerer) error {
		if timeout < 0 {
			return fmt.Errorf("%w: timeout %s", ErrInvalidOption, timeout)
		}
		a.timeout = timeout
		return nil
	}
}

// WithAnswerLogger sets a custom logger.
func WithAnswerLogger(logger *slog.Logger) AnswerOption {
	return func(a *Answerer) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAnswerer creates an Answerer on top of searcher.
func NewAnswerer(searcher *Searcher, generator ai.Generator, opts ...AnswerOption) (*Answerer, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	a := &Answerer{
		searcher:     searcher,
		generator:    generator,
		systemPrompt: DefaultSystemPrompt,
		timeout:      60 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "answerer")
	return a, nil
}

// Answer retrieves up to k reviews for question and asks the model to
// answer from them. Retrieval errors are returned unchanged; a model
// failure is wrapped in ErrGenerationFailed.
func (a *Answerer) Answer(ctx context.Context, question string, k int) (*Answer, error) {
	sources, err := a.searcher.Search(ctx, question, k)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return &Answer{Text: NoReviewsAnswer, Sources: sources}, nil
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	text, err := a.generator.Generate(callCtx, a.systemPrompt, BuildPrompt(question, sources))
	if err != nil {
		a.logger.Error("error generating answer", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return &Answer{Text: strings.TrimSpace(text), Sources: sources}, nil
}

// BuildPrompt lays out the retrieved reviews as numbered context followed
// by the question.
func BuildPrompt(question string, sources []core.SearchResult) string {
	var b strings.Builder
	b.WriteString("Product reviews:\n")
	for i, src := range sources {
		meta := src.Document.Metadata
		fmt.Fprintf(&b, "[%d] %s (rating %g): %s\n", i+1, meta.ProductName, meta.ProductRating, meta.ProductSummary)
		fmt.Fprintf(&b, "    %s\n", src.Document.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\nAnswer:")
	return b.String()
}
