package synthesis

import (
	"math"
)

// EffortSimilarity decays exponentially with the relative effort gap:
// exp(-5·|ref-cand|/ref). Identical efforts score 1, a 20% gap ~0.37.
func EffortSimilarity(ref, cand float64) float64 {
	if ref <= 0 {
		if cand <= 0 {
			return 1
		}
		return 0
	}
	return math.Exp(-5 * math.Abs(ref-cand) / ref)
}

// HistogramOverlap is 1 minus half the L1 distance of two distributions
func HistogramOverlap(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var l1 float64
	for i := range a {
		l1 += math.Abs(a[i] - b[i])
	}
	return math.Max(0, math.Min(1, 1-l1/2))
}

// Similarity blends effort and gradient-shape similarity into [0, 1]
func Similarity(ref, cand Profile, effortWeight float64) float64 {
	s := effortWeight*EffortSimilarity(ref.Effort, cand.Effort) +
		(1-effortWeight)*HistogramOverlap(ref.Histogram, cand.Histogram)
	return math.Max(0, math.Min(1, s))
}
