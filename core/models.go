package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for an indexed review.
// It is derived from content so identical reviews map to the same entry.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as 16 lowercase hex digits.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ParseID parses the output of ID.String.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(v), nil
}

// idSeparator keeps "ab"+"c" and "a"+"bc" from hashing to the same ID.
const idSeparator = "\x1f"

// RawRecord is one row of the source corpus as loaded, before normalization.
type RawRecord struct {
	Title   string
	Rating  float64
	Summary string
	Review  string
	Row     int // 0-based data row in the source, header excluded
}

// Metadata is the structured part of a review. It is stored next to the
// vector for display and filtering but is never embedded.
type Metadata struct {
	ProductName    string
	ProductRating  float64
	ProductSummary string
}

// DocumentRecord is the normalized unit produced from one RawRecord.
// Content is the only field that gets embedded and is never empty.
type DocumentRecord struct {
	Content  string
	Metadata Metadata
}

// ID returns the deterministic identifier for the document: a hash of
// the product name and the review content. Re-ingesting the same row
// always yields the same ID, which makes upserts idempotent.
func (d DocumentRecord) ID() ID {
	return IDFromContent(d.Metadata.ProductName + idSeparator + d.Content)
}

// IndexEntry is what a vector index persists for one document.
type IndexEntry struct {
	ID       ID
	Vector   []float32
	Content  string
	Metadata Metadata
}

// Document returns the DocumentRecord view of the entry.
func (e IndexEntry) Document() DocumentRecord {
	return DocumentRecord{Content: e.Content, Metadata: e.Metadata}
}

// ScoredEntry is a raw nearest-neighbor hit returned by a vector index.
type ScoredEntry struct {
	Entry IndexEntry
	Score float32
}

// SearchResult is a ranked retrieval result.
type SearchResult struct {
	ID       ID
	Document DocumentRecord
	Score    float32
}

// FailedRecord pairs a source row index with the reason it was not ingested.
type FailedRecord struct {
	Index  int
	Reason error
}

// PipelineRun summarizes one ingestion invocation. It is never persisted.
type PipelineRun struct {
	RunID          string
	AttemptedCount int
	InsertedCount  int
	// ResumedCount is the part of InsertedCount committed by an earlier,
	// interrupted run and skipped by this one.
	ResumedCount  int
	FailedRecords []FailedRecord
	Batches       int
	Aborted       bool
	AbortReason   error
	Elapsed       time.Duration
}

// Succeeded reports whether the run finished without aborting.
func (r *PipelineRun) Succeeded() bool {
	return !r.Aborted
}

// Checkpoint records ingestion progress so an interrupted run can resume.
// Fingerprint identifies the document set the batch cursor belongs to.
type Checkpoint struct {
	Key            string
	Fingerprint    uint64
	BatchSize      int
	CompletedBatch int // number of leading batches fully committed
	UpdatedAt      time.Time
}
