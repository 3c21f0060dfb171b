package models

// ElevationProfile is the distance/elevation series of a race
type ElevationProfile struct {
	Distance   []float64 `json:"distance"`  // cumulative, km
	Elevation  []float64 `json:"elevation"` // m
	Smoothed   bool      `json:"smoothed"`
	WindowSize int       `json:"window_size"`
}

// GradientBin is one grade bucket of one side (ascent or descent)
type GradientBin struct {
	Range      string  `json:"range"`
	Percentage float64 `json:"percentage"`
	Distance   float64 `json:"distance"` // km
}

// GradientDistribution holds ascent and descent histograms
type GradientDistribution struct {
	Ascent     []GradientBin `json:"ascent"`
	Descent    []GradientBin `json:"descent"`
	Smoothed   bool          `json:"smoothed"`
	WindowSize int           `json:"window_size"`
}

// SmoothedMetrics is the response of the metrics endpoint
type SmoothedMetrics struct {
	RaceMetrics
	Smoothed   bool `json:"smoothed"`
	WindowSize int  `json:"window_size"`
}
