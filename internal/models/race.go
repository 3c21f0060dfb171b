package models

import (
	"time"

	"github.com/voltplatform/volt-backend/internal/spatial"
)

// Race is a stored track in a user's library
type Race struct {
	ID                 string    `json:"id" db:"id"`
	UserID             string    `json:"user_id" db:"user_id"`
	Name               string    `json:"name" db:"name"`
	GpxData            GpxData   `json:"gpx_data" db:"points_json"`
	DistanceKm         float64   `json:"distance_km" db:"distance_km"`
	ElevationGainM     float64   `json:"elevation_gain_m" db:"elevation_gain_m"`
	ElevationLossM     float64   `json:"elevation_loss_m" db:"elevation_loss_m"`
	ITRAEffortDistance float64   `json:"itra_effort_distance" db:"itra_effort_distance"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`

	// Query-time smoothed metrics, never persisted
	SmoothedElevationGainM     *float64 `json:"smoothed_elevation_gain_m,omitempty" db:"-"`
	SmoothedElevationLossM     *float64 `json:"smoothed_elevation_loss_m,omitempty" db:"-"`
	SmoothedITRAEffortDistance *float64 `json:"smoothed_itra_effort_distance,omitempty" db:"-"`

	// Point extent, used to pre-filter the synthesis corpus
	MinLat float64 `json:"-" db:"min_lat"`
	MaxLat float64 `json:"-" db:"max_lat"`
	MinLon float64 `json:"-" db:"min_lon"`
	MaxLon float64 `json:"-" db:"max_lon"`
}

// RaceMetrics are the distance/elevation/effort numbers of a point sequence
type RaceMetrics struct {
	DistanceKm         float64 `json:"distance_km"`
	ElevationGainM     float64 `json:"elevation_gain_m"`
	ElevationLossM     float64 `json:"elevation_loss_m"`
	ITRAEffortDistance float64 `json:"itra_effort_distance"`
}

// SetExtent computes the stored point extent from the race's points
func (r *Race) SetExtent() {
	points := r.GpxData.Points
	if len(points) == 0 {
		return
	}
	path := make([]spatial.Point, len(points))
	for i, p := range points {
		path[i] = spatial.Point{Lat: p.Lat, Lon: p.Lon}
	}
	b := spatial.BoundsOf(path)
	r.MinLat, r.MaxLat = b.South, b.North
	r.MinLon, r.MaxLon = b.West, b.East
}
