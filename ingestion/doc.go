// Package ingestion turns raw review rows into vector index entries.
//
// Transform maps one RawRecord to a DocumentRecord. Pipeline runs Transform
// over a whole corpus on a worker pool, then embeds and upserts the
// documents in batches:
//   - Records that fail to transform are reported, not fatal
//   - Entry IDs are derived from content, so re-running is idempotent
//   - At most MaxInFlight batches call the providers at once
//   - A batch that still fails after bounded retries aborts the rest
//   - With checkpoints enabled an aborted run resumes where it stopped
package ingestion
