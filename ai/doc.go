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


// Package ai provides abstractions for the model services used by reviewrag.
//
// Two capabilities are needed: turning review text into vectors, and
// writing an answer grounded on retrieved reviews. Both are interfaces so
// the pipeline and the retrieval service never depend on a vendor SDK:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Produces an answer from a system instruction and prompt
//   - AIProvider: Aggregates both for initialization and shutdown
//
// # Implementation Packages
//
//   - ai/googleai: Gemini models through langchaingo
//   - ai/openai: OpenAI or any OpenAI-compatible server (Ollama, vLLM, ...)
//   - ai/mock: Deterministic test doubles
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, googleai.NewProvider) return
// INTERFACE types. Mock constructors return CONCRETE types so tests can
// inject behavior and read call counts; mock.NewMockProvider returns the
// interface and exposes GetMockEmbedder/GetMockGenerator for assertions.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithAPIKey(os.Getenv("GOOGLE_API_KEY")))
//	provider, err := googleai.NewProvider(ctx, config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "cheap but works")
//
// # Thread Safety
//
// All implementations must be safe for concurrent use by multiple goroutines.
package ai
