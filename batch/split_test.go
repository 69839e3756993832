package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []Span
	}{
		{"empty", 0, 3, []Span{}},
		{"exact", 6, 3, []Span{{1, 0, 3}, {2, 3, 6}}},
		{"remainder", 7, 3, []Span{{1, 0, 3}, {2, 3, 6}, {3, 6, 7}}},
		{"single", 2, 32, []Span{{1, 0, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.n, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Split(3, 0)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestChunk(t *testing.T) {
	chunks, err := Chunk([]string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunks)

	_, err = Chunk([]string{"a"}, -1)
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}
