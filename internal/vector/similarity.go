package vector

import "math"

// dotProduct returns the inner product of two equal-length vectors,
// clamped to [0, 1]. For L2-normalized vectors this is cosine similarity.
func dotProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return math.Max(0, math.Min(1, dot))
}

// CosineSimilarity returns cosine similarity between two normalized vectors (0-1).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return dotProduct(a, b)
}
