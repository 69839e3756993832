package ai

import "math"

// NormalizeVector scales v to unit length and returns a new slice.
// A zero vector comes back as a zero vector of the same length.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	result := make([]float32, len(v))
	if sum == 0 {
		return result
	}

	magnitude := math.Sqrt(sum)
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// NormalizeVectors applies NormalizeVector to each vector.
func NormalizeVectors(vs [][]float32) [][]float32 {
	out := make([][]float32, len(vs))
	for i, v := range vs {
		out[i] = NormalizeVector(v)
	}
	return out
}
