// Package batch holds the plumbing shared by ingestion and reembedding:
// splitting work into batches, retrying external calls with exponential
// backoff, and printing progress.
package batch
