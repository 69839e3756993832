// Package reembed provides functionality for reembedding an existing review
// index with a new or updated embedding model.
//
// Entries keep their IDs, content and metadata; only vectors are replaced.
// Batches are retried with exponential backoff, progress is printed as the
// run advances, and vectors are normalized to unit length.
package reembed
