package analysis

import (
	"github.com/voltplatform/volt-backend/internal/models"
)

// Window bounds and default (meters)
const (
	MinWindowSize     = 10
	MaxWindowSize     = 1000
	DefaultWindowSize = 100
)

// View is a race seen through one (window, smoothed) pair. Profile,
// gradient and metrics are all derived from the same series, so they
// always agree with each other.
type View struct {
	Series     Series
	WindowSize int
	Smoothed   bool
}

// NewView builds the raw or smoothed series of a point sequence
func NewView(points []models.GpxPoint, windowSize int, smoothed bool) *View {
	series := NewSeries(points)
	if smoothed {
		series = Smooth(series, float64(windowSize))
	}
	return &View{Series: series, WindowSize: windowSize, Smoothed: smoothed}
}

// Profile returns the elevation profile with distance in kilometres
func (v *View) Profile() models.ElevationProfile {
	distance := make([]float64, v.Series.Len())
	for i, d := range v.Series.Distance {
		distance[i] = d / 1000
	}
	return models.ElevationProfile{
		Distance:   distance,
		Elevation:  append([]float64(nil), v.Series.Elevation...),
		Smoothed:   v.Smoothed,
		WindowSize: v.WindowSize,
	}
}

// Gradient returns the ascent/descent grade distribution
func (v *View) Gradient() models.GradientDistribution {
	ascent, descent := GradientDistances(v.Series, float64(v.WindowSize))
	return models.GradientDistribution{
		Ascent:     toBins(ascent),
		Descent:    toBins(descent),
		Smoothed:   v.Smoothed,
		WindowSize: v.WindowSize,
	}
}

// Metrics returns gain, loss and effort of the viewed series
func (v *View) Metrics() models.SmoothedMetrics {
	return models.SmoothedMetrics{
		RaceMetrics: v.Series.Metrics(),
		Smoothed:    v.Smoothed,
		WindowSize:  v.WindowSize,
	}
}
