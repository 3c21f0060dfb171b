package analysis

import (
	"math"

	"github.com/voltplatform/volt-backend/internal/models"
)

// GradientRanges are the fixed grade buckets, 5% wide, open-ended above 30%
var GradientRanges = []string{"0-5", "5-10", "10-15", "15-20", "20-25", "25-30", "30+"}

const gradientBinWidth = 5.0

func gradientBin(grade float64) int {
	i := int(math.Abs(grade) / gradientBinWidth)
	if i >= len(GradientRanges) {
		i = len(GradientRanges) - 1
	}
	return i
}

// GradientDistances walks the series in consecutive windows of windowM
// meters (the trailing partial window included) and returns the distance
// (m) spent in each grade bucket, split into ascent (grade > 0) and descent.
func GradientDistances(s Series, windowM float64) (ascent, descent []float64) {
	ascent = make([]float64, len(GradientRanges))
	descent = make([]float64, len(GradientRanges))

	n := s.Len()
	start := 0
	for start < n-1 {
		end := start + 1
		for end < n-1 && s.Distance[end]-s.Distance[start] < windowM {
			end++
		}

		d := s.Distance[end] - s.Distance[start]
		if d > 0 {
			grade := (s.Elevation[end] - s.Elevation[start]) / d * 100
			if grade > 0 {
				ascent[gradientBin(grade)] += d
			} else {
				descent[gradientBin(grade)] += d
			}
		}
		start = end
	}
	return ascent, descent
}

func toBins(distances []float64) []models.GradientBin {
	var total float64
	for _, d := range distances {
		total += d
	}

	bins := make([]models.GradientBin, len(distances))
	for i, d := range distances {
		bins[i] = models.GradientBin{Range: GradientRanges[i], Distance: d / 1000}
		if total > 0 {
			bins[i].Percentage = d / total * 100
		}
	}
	return bins
}

// GradientHistogram returns the share of total distance in each of the
// ascent buckets followed by each of the descent buckets. It sums to 1
// for any series with length.
func GradientHistogram(s Series, windowM float64) []float64 {
	ascent, descent := GradientDistances(s, windowM)
	hist := append(ascent, descent...)

	var total float64
	for _, d := range hist {
		total += d
	}
	if total > 0 {
		for i := range hist {
			hist[i] /= total
		}
	}
	return hist
}
