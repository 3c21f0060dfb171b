package gpxio

import (
	"math"

	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/spatial"
)

const (
	// MaxPoints caps the stored point count of a single track
	MaxPoints = 50000
	// MinSpacingMeters is the minimum distance between two kept points
	MinSpacingMeters = 5.0

	duplicateEpsilonDeg = 1e-6

	minValidElevation = -500.0
	maxValidElevation = 9000.0
	spikeThreshold    = 100.0 // m away from both neighbours
	spikeNeighbourGap = 50.0  // neighbours must agree within this
)

// Optimize removes consecutive duplicates, downsamples very long tracks and
// drops points closer than MinSpacingMeters to the previously kept point.
// The final point is always kept.
func Optimize(points []models.GpxPoint) []models.GpxPoint {
	if len(points) == 0 {
		return points
	}

	deduped := make([]models.GpxPoint, 0, len(points))
	deduped = append(deduped, points[0])
	for _, p := range points[1:] {
		last := deduped[len(deduped)-1]
		if math.Abs(p.Lat-last.Lat) < duplicateEpsilonDeg && math.Abs(p.Lon-last.Lon) < duplicateEpsilonDeg {
			continue
		}
		deduped = append(deduped, p)
	}

	if len(deduped) > MaxPoints {
		step := int(math.Ceil(float64(len(deduped)) / float64(MaxPoints)))
		sampled := make([]models.GpxPoint, 0, MaxPoints+1)
		for i := 0; i < len(deduped); i += step {
			sampled = append(sampled, deduped[i])
		}
		if last := deduped[len(deduped)-1]; sampled[len(sampled)-1] != last {
			sampled = append(sampled, last)
		}
		deduped = sampled
	}

	if len(deduped) < 2 {
		return deduped
	}

	kept := make([]models.GpxPoint, 0, len(deduped))
	kept = append(kept, deduped[0])
	for _, p := range deduped[1 : len(deduped)-1] {
		last := kept[len(kept)-1]
		if spatial.HaversineDistance(last.Lat, last.Lon, p.Lat, p.Lon) >= MinSpacingMeters {
			kept = append(kept, p)
		}
	}

	final := deduped[len(deduped)-1]
	if len(kept) > 1 {
		last := kept[len(kept)-1]
		if spatial.HaversineDistance(last.Lat, last.Lon, final.Lat, final.Lon) < MinSpacingMeters {
			kept = kept[:len(kept)-1]
		}
	}
	return append(kept, final)
}

// CleanElevations fixes elevations in place. Values outside the plausible
// range are replaced by the mean of the valid ones, and isolated single-point
// spikes are flattened to the midpoint of their neighbours.
func CleanElevations(points []models.GpxPoint) {
	if len(points) == 0 {
		return
	}

	var sum float64
	var valid int
	for _, p := range points {
		if isValidElevation(p.Ele) {
			sum += p.Ele
			valid++
		}
	}
	var fallback float64
	if valid > 0 {
		fallback = sum / float64(valid)
	}
	for i := range points {
		if !isValidElevation(points[i].Ele) {
			points[i].Ele = fallback
		}
	}

	if len(points) < 3 {
		return
	}

	original := make([]float64, len(points))
	for i, p := range points {
		original[i] = p.Ele
	}
	for i := 1; i < len(points)-1; i++ {
		prev, cur, next := original[i-1], original[i], original[i+1]
		if math.Abs(cur-prev) > spikeThreshold && math.Abs(cur-next) > spikeThreshold &&
			math.Abs(prev-next) < spikeNeighbourGap {
			points[i].Ele = (prev + next) / 2
		}
	}
}

func isValidElevation(ele float64) bool {
	return !math.IsNaN(ele) && ele > minValidElevation && ele < maxValidElevation
}
