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


// Package googleai provides AI services backed by Google's Gemini models.
//
// A single langchaingo googleai client serves both roles: its embedding
// endpoint behind ai.Embedder and its chat endpoint behind ai.Generator.
//
//	config := ai.NewConfig(ai.WithAPIKey(os.Getenv("GOOGLE_API_KEY")))
//	provider, err := googleai.NewProvider(ctx, config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
package googleai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/reviewrag/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// maxEmbedBatch is the largest batch the Gemini embedding endpoint accepts.
const maxEmbedBatch = 100

// Provider implements ai.AIProvider on top of the Gemini API.
type Provider struct {
	client    *googleai.GoogleAI
	embedder  *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider creates a provider for the configured embedding and generation models.
//
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Provider != ai.ProviderGoogleAI {
		return nil, fmt.Errorf("googleai: config is for provider %q", config.Provider)
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(config.APIKey),
		googleai.WithDefaultModel(config.GenerationModel),
		googleai.WithDefaultEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(maxEmbedBatch),
	)
	if err != nil {
		return nil, err
	}

	return &Provider{
		client: client,
		embedder: &Embedder{
			embedder: embedder,
			logger:   slog.Default().With("component", "googleai-embedder"),
		},
		generator: &Generator{
			llm:         client,
			temperature: config.Temperature,
			logger:      slog.Default().With("component", "googleai-generator"),
		},
		logger: slog.Default().With("component", "googleai-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns the answer generation service.
func (p *Provider) Generator() ai.Generator {
	return p.generator
}

// Close releases resources held by the provider.
func (p *Provider) Close() error {
	p.logger.Debug("closing googleai provider")
	return nil
}

// Embedder implements ai.Embedder with Gemini embeddings.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}
	return vector, nil
}

// EmbedTexts generates vector embeddings for multiple text strings.
// Large inputs are split into requests of at most 100 texts.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding result mismatch. expected %d, received %d", len(texts), len(vectors))
	}
	return vectors, nil
}

// Generator implements ai.Generator with a Gemini chat model.
type Generator struct {
	llm         llms.Model
	temperature float64
	logger      *slog.Logger
}

// Generate asks the model to answer prompt under the system instruction.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := g.llm.GenerateContent(ctx, messages, llms.WithTemperature(g.temperature))
	if err != nil {
		g.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no response from model")
	}
	return response.Choices[0].Content, nil
}
