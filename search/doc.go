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


// Package search answers free-text questions over indexed product reviews.
//
// Searcher embeds the query, asks the vector index for its nearest
// neighbors and returns them ranked by similarity score. Answerer goes one
// step further and hands the retrieved reviews to a generation model to
// write an answer that cites them.
//
// Backend failures surface as *core.BackendUnavailableError, never as an
// empty result list.
package search
