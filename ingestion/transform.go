package ingestion

import (
	"strings"

	"github.com/poiesic/reviewrag/core"
)

// Transform turns one raw row into a DocumentRecord.
//
// The trimmed review becomes the content; title, rating and summary are
// copied into metadata untouched. A review that is empty after trimming
// yields a *core.MalformedRecordError carrying record.Row.
func Transform(record core.RawRecord) (core.DocumentRecord, error) {
	return transformAt(record.Row, record)
}

func transformAt(index int, record core.RawRecord) (core.DocumentRecord, error) {
	content := strings.TrimSpace(record.Review)
	if content == "" {
		return core.DocumentRecord{}, &core.MalformedRecordError{
			Index:  index,
			Reason: "review is empty",
		}
	}
	return core.DocumentRecord{
		Content: content,
		Metadata: core.Metadata{
			ProductName:    record.Title,
			ProductRating:  record.Rating,
			ProductSummary: record.Summary,
		},
	}, nil
}
