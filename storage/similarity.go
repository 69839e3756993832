package storage

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/reviewrag/core"
)

// Cosine returns the cosine similarity of a and b. Vectors of different
// length are compared over their common prefix; a zero vector scores 0.
func Cosine(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SortByScore orders hits by score descending, breaking ties by ID so
// results are stable across runs.
func SortByScore(hits []core.ScoredEntry) {
	slices.SortFunc(hits, func(a, b core.ScoredEntry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Entry.ID, b.Entry.ID)
	})
}
