// Package analysis derives distance, elevation and gradient figures from a
// race's point sequence. Every function is pure: the same points, window and
// smoothing flag always give the same numbers.
package analysis

import (
	"github.com/voltplatform/volt-backend/internal/models"
	"github.com/voltplatform/volt-backend/internal/spatial"
)

// ITRAEffort blends horizontal distance with climbing: every 100 m of
// ascent counts as one extra kilometre.
func ITRAEffort(distanceKm, gainM float64) float64 {
	return distanceKm + gainM/100
}

// Series is the cumulative distance (m) / elevation (m) profile of a track
type Series struct {
	Distance  []float64
	Elevation []float64
}

// NewSeries builds the raw series of a point sequence
func NewSeries(points []models.GpxPoint) Series {
	coords := make([]spatial.Point, len(points))
	elevation := make([]float64, len(points))
	for i, p := range points {
		coords[i] = spatial.Point{Lat: p.Lat, Lon: p.Lon}
		elevation[i] = p.Ele
	}
	return Series{
		Distance:  spatial.CumulativeDistances(coords),
		Elevation: elevation,
	}
}

// Len returns the number of samples
func (s Series) Len() int {
	return len(s.Elevation)
}

// TotalDistance returns the path length in meters
func (s Series) TotalDistance() float64 {
	if len(s.Distance) == 0 {
		return 0
	}
	return s.Distance[len(s.Distance)-1]
}

// Slice returns the samples in [from, to) with distance rebased to zero
func (s Series) Slice(from, to int) Series {
	out := Series{
		Distance:  make([]float64, to-from),
		Elevation: make([]float64, to-from),
	}
	base := s.Distance[from]
	for i := from; i < to; i++ {
		out.Distance[i-from] = s.Distance[i] - base
		out.Elevation[i-from] = s.Elevation[i]
	}
	return out
}

// GainLoss sums the positive and negative elevation deltas
func GainLoss(elevation []float64) (gain, loss float64) {
	for i := 1; i < len(elevation); i++ {
		delta := elevation[i] - elevation[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	return gain, loss
}

// Metrics computes distance, gain, loss and effort for a series
func (s Series) Metrics() models.RaceMetrics {
	distanceKm := s.TotalDistance() / 1000
	gain, loss := GainLoss(s.Elevation)
	return models.RaceMetrics{
		DistanceKm:         distanceKm,
		ElevationGainM:     gain,
		ElevationLossM:     loss,
		ITRAEffortDistance: ITRAEffort(distanceKm, gain),
	}
}

// ComputeMetrics computes the raw (unsmoothed) metrics of a point sequence
func ComputeMetrics(points []models.GpxPoint) models.RaceMetrics {
	return NewSeries(points).Metrics()
}
