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


// Package storage defines the vector index contract used by reviewrag.
//
// The ingestion pipeline and the retrieval service only talk to a
// VectorIndex, so the backend can be swapped without touching either:
//
//   - storage/badger: embedded BadgerDB index with brute-force cosine search
//   - storage/milvus: remote Milvus collection
//   - storage/memory: map-backed index for tests and throwaway runs
//
// # Identity
//
// Indices never assign IDs. Callers compute a deterministic core.ID from
// the document (see core.DocumentRecord.ID) before calling Upsert, so
// running the same ingestion twice leaves exactly one entry per review.
//
// # Usage
//
//	index, err := badger.NewIndex(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer index.Close()
//
//	ids, err := index.Upsert(ctx, entries)
//	hits, err := index.Query(ctx, vector, 4)
//
// # Thread Safety
//
// All index implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Serialization
//
// Entries and checkpoints are encoded with mus-go. The encoding is a flat
// sequence of fields; vectors are written as a length followed by raw
// float32 values.
package storage
