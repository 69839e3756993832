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

import "errors"

var (
	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrEmbedderRequired is returned when the provider has no embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrSearcherRequired is returned when an Answerer gets no Searcher.
	ErrSearcherRequired = errors.New("searcher required")

	// ErrGeneratorRequired is returned when an Answerer gets no Generator.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrGenerationFailed wraps a generation model failure.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrInvalidOption is returned for out-of-range option values.
	ErrInvalidOption = errors.New("invalid search option")
)
