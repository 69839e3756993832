package batch

import "slices"

// Span locates one batch inside the slice it was cut from.
type Span struct {
	Number int // 1-based
	Start  int
	End    int // exclusive
}

// Len returns the number of items in the span.
func (s Span) Len() int { return s.End - s.Start }

// Split cuts n items into consecutive spans of at most size items.
// The order of spans follows the input order.
func Split(n, size int) ([]Span, error) {
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}
	spans := make([]Span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		spans = append(spans, Span{
			Number: len(spans) + 1,
			Start:  start,
			End:    min(start+size, n),
		})
	}
	return spans, nil
}

// Chunk returns items grouped into slices of at most size elements.
func Chunk[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}
	return slices.Collect(slices.Chunk(items, size)), nil
}
