package ingestion

import (
	"errors"
	"testing"

	"github.com/poiesic/reviewrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform(t *testing.T) {
	tests := []struct {
		name   string
		record core.RawRecord
		want   core.DocumentRecord
	}{
		{
			name:   "plain",
			record: core.RawRecord{Title: "Headphone X", Rating: 3, Summary: "ok", Review: "cheap but works"},
			want: core.DocumentRecord{
				Content:  "cheap but works",
				Metadata: core.Metadata{ProductName: "Headphone X", ProductRating: 3, ProductSummary: "ok"},
			},
		},
		{
			name:   "review is trimmed, metadata is not",
			record: core.RawRecord{Title: " Cable Y ", Rating: 1, Summary: " bad\n", Review: "\t broke after a week \n"},
			want: core.DocumentRecord{
				Content:  "broke after a week",
				Metadata: core.Metadata{ProductName: " Cable Y ", ProductRating: 1, ProductSummary: " bad\n"},
			},
		},
		{
			name:   "rating passes through unchecked",
			record: core.RawRecord{Title: "Z", Rating: 42, Review: "x"},
			want: core.DocumentRecord{
				Content:  "x",
				Metadata: core.Metadata{ProductName: "Z", ProductRating: 42},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transform(tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransform_EmptyReview(t *testing.T) {
	for _, review := range []string{"", "   ", "\n\t"} {
		_, err := Transform(core.RawRecord{Title: "A", Rating: 5, Review: review, Row: 7})
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrMalformedRecord)

		var malformed *core.MalformedRecordError
		require.True(t, errors.As(err, &malformed))
		assert.Equal(t, 7, malformed.Index)
	}
}
